package homepage

import (
	"errors"
	"testing"
)

func TestMapServices(t *testing.T) {
	config := ServicesConfig{
		{
			"Infrastructure": []map[string]ServiceProps{
				{
					"Traefik": {
						Icon: "traefik.svg",
						Href: "https://traefik.domain.ext",
					},
				},
				{
					"AdGuard Home": {
						Icon: "adguard-home.svg",
						Href: "https://adguard.domain.ext",
					},
				},
			},
		},
	}

	entries, err := MapServices(config)
	if err != nil {
		t.Fatalf("MapServices() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("MapServices() returned %v entries, want 2", len(entries))
	}
	if entries[0].Title != "AdGuard Home" || entries[1].Title != "Traefik" {
		t.Errorf("MapServices() order = %q, %q", entries[0].Title, entries[1].Title)
	}
}

func TestMapServicesEmptyConfig(t *testing.T) {
	entries, err := MapServices(ServicesConfig{})

	if !errors.Is(err, ErrNoEntries) {
		t.Errorf("MapServices() with empty config error = %v, want ErrNoEntries", err)
	}
	if entries != nil {
		t.Errorf("MapServices() with empty config should return nil, got %v", len(entries))
	}
}

func TestMapServicesMultipleGroups(t *testing.T) {
	config := ServicesConfig{
		{"Group2": []map[string]ServiceProps{{"Service2": {Href: "https://service2.example.com"}}}},
		{"Group1": []map[string]ServiceProps{{"Service1": {Href: "https://service1.example.com"}}}},
	}

	entries, err := MapServices(config)
	if err != nil {
		t.Fatalf("MapServices() error = %v", err)
	}

	if len(entries) != 2 || entries[0].Group != "Group1" {
		t.Errorf("MapServices() = %+v", entries)
	}
}

func TestMapBookmarksDedupesURLs(t *testing.T) {
	config := BookmarksConfig{
		{
			"Dev": []map[string][]BookmarkEntry{
				{"Github": {{Abbr: "GH", Href: "https://github.com/"}}},
				{"GitHub again": {{Abbr: "GH", Href: "https://github.com/"}}},
				{"Empty": {}},
				{"No href": {{Abbr: "NH"}}},
			},
		},
	}

	entries, err := MapBookmarks(config)
	if err != nil {
		t.Fatalf("MapBookmarks() error = %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("MapBookmarks() returned %d entries, want 1", len(entries))
	}
	if entries[0].Title != "GitHub again" && entries[0].Title != "Github" {
		t.Errorf("unexpected title %q", entries[0].Title)
	}
}
