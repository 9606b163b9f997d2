package verification

import (
	"strings"
	"testing"
)

func TestVerifyLocationInsideRadius(t *testing.T) {
	point := &GeoPoint{Latitude: -6.2001, Longitude: 106.8167}
	locations := []AuthorizedLocation{
		{Latitude: -6.2000, Longitude: 106.8167, Radius: 100, Name: "Main Hall"},
	}

	decision := VerifyLocation(point, locations, 100)
	if !decision.Verified {
		t.Fatalf("expected point ~11m away to verify, got %+v", decision)
	}
	if !strings.HasPrefix(decision.Message, "Within authorized radius of Main Hall (") {
		t.Fatalf("unexpected message: %q", decision.Message)
	}
}

func TestVerifyLocationOutsideRadius(t *testing.T) {
	// Roughly 222m north of the fence center against a 100m radius.
	point := &GeoPoint{Latitude: -6.1980, Longitude: 106.8167}
	locations := []AuthorizedLocation{
		{Latitude: -6.2000, Longitude: 106.8167, Radius: 100, Name: "Main Hall"},
	}

	decision := VerifyLocation(point, locations, 100)
	if decision.Verified {
		t.Fatalf("expected rejection outside the radius, got %+v", decision)
	}
	if decision.Message != "Not near any authorized location" {
		t.Fatalf("unexpected message: %q", decision.Message)
	}
}

func TestVerifyLocationMissingPoint(t *testing.T) {
	decision := VerifyLocation(nil, []AuthorizedLocation{{Latitude: 1, Longitude: 1}}, 100)
	if decision.Verified || decision.Message != "Missing location data" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestVerifyLocationNoAuthorizedLocations(t *testing.T) {
	decision := VerifyLocation(&GeoPoint{Latitude: 1, Longitude: 1}, nil, 100)
	if decision.Verified || decision.Message != "No authorized locations provided" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestVerifyLocationFirstMatchWins(t *testing.T) {
	point := &GeoPoint{Latitude: -6.2000, Longitude: 106.8167}
	locations := []AuthorizedLocation{
		{Latitude: -6.2000, Longitude: 106.8167, Radius: 100, Name: "First"},
		{Latitude: -6.2000, Longitude: 106.8167, Radius: 500, Name: "Second"},
	}

	decision := VerifyLocation(point, locations, 100)
	if !decision.Verified || !strings.Contains(decision.Message, "First") {
		t.Fatalf("expected the first containing fence to win, got %+v", decision)
	}
}

func TestVerifyLocationSkipsNullIslandEntries(t *testing.T) {
	point := &GeoPoint{Latitude: 0.0001, Longitude: 0.0001}
	locations := []AuthorizedLocation{
		{Latitude: 0, Longitude: 0, Radius: 100, Name: "Unset"},
	}

	decision := VerifyLocation(point, locations, 100)
	if decision.Verified {
		t.Fatalf("expected zeroed fence entries to be skipped, got %+v", decision)
	}
}

func TestVerifyLocationAppliesDefaultRadiusAndName(t *testing.T) {
	point := &GeoPoint{Latitude: -6.2001, Longitude: 106.8167}
	locations := []AuthorizedLocation{
		{Latitude: -6.2000, Longitude: 106.8167},
	}

	decision := VerifyLocation(point, locations, 100)
	if !decision.Verified {
		t.Fatalf("expected default radius to apply, got %+v", decision)
	}
	if !strings.Contains(decision.Message, "Unnamed location") {
		t.Fatalf("expected unnamed fence placeholder, got %q", decision.Message)
	}

	decision = VerifyLocation(point, locations, 5)
	if decision.Verified {
		t.Fatalf("expected rejection with a 5m default radius, got %+v", decision)
	}
}
