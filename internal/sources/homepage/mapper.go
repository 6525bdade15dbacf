package homepage

import (
	"errors"
	"sort"
)

// ErrNoEntries is returned when a config holds no usable link.
var ErrNoEntries = errors.New("no entries with an href found")

// Entry is one link found in a Homepage config.
type Entry struct {
	Group string // category or service group
	Title string
	URL   string
}

// MapBookmarks flattens a bookmarks config into entries.
// The bookmark name is the title; abbr is only a fallback.
func MapBookmarks(config BookmarksConfig) ([]Entry, error) {
	var entries []Entry

	for _, category := range config {
		for group, bookmarkList := range category {
			for _, bookmarkMap := range bookmarkList {
				for name, entryList := range bookmarkMap {
					if len(entryList) == 0 || entryList[0].Href == "" {
						continue
					}
					entry := entryList[0]

					title := name
					if title == "" {
						title = entry.Abbr
					}
					entries = append(entries, Entry{Group: group, Title: title, URL: entry.Href})
				}
			}
		}
	}

	return finish(entries)
}

// MapServices flattens a services config into entries.
func MapServices(config ServicesConfig) ([]Entry, error) {
	var entries []Entry

	for _, groupMap := range config {
		for group, servicesList := range groupMap {
			for _, serviceMap := range servicesList {
				for name, props := range serviceMap {
					if props.Href == "" {
						continue
					}
					entries = append(entries, Entry{Group: group, Title: name, URL: props.Href})
				}
			}
		}
	}

	return finish(entries)
}

// finish drops duplicate URLs and fixes the order, since YAML mappings
// decode into maps.
func finish(entries []Entry) ([]Entry, error) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return entries[i].Group < entries[j].Group
		}
		return entries[i].Title < entries[j].Title
	})

	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		out = append(out, e)
	}

	if len(out) == 0 {
		return nil, ErrNoEntries
	}
	return out, nil
}
