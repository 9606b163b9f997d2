package verification

import (
	"fmt"

	"github.com/umahmood/haversine"
)

// GeoPoint is a coordinate in decimal degrees (WGS 84).
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AuthorizedLocation is a circular geofence a subject may check in from.
// Radius is in meters; zero means the configured default applies.
type AuthorizedLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
	Name      string  `json:"name"`
}

// VerifyLocation checks the current coordinates against an ordered list of
// authorized locations. The first location whose radius contains the point
// wins; the scan stops there rather than looking for a best match.
func VerifyLocation(point *GeoPoint, locations []AuthorizedLocation, defaultRadius float64) LocationDecision {
	if point == nil {
		return LocationDecision{Verified: false, Message: "Missing location data"}
	}
	if len(locations) == 0 {
		return LocationDecision{Verified: false, Message: "No authorized locations provided"}
	}

	current := haversine.Coord{Lat: point.Latitude, Lon: point.Longitude}
	for _, loc := range locations {
		if loc.Latitude == 0 && loc.Longitude == 0 {
			continue
		}

		radius := loc.Radius
		if radius <= 0 {
			radius = defaultRadius
		}
		name := loc.Name
		if name == "" {
			name = "Unnamed location"
		}

		_, km := haversine.Distance(haversine.Coord{Lat: loc.Latitude, Lon: loc.Longitude}, current)
		meters := km * 1000
		if meters <= radius {
			return LocationDecision{
				Verified: true,
				Message:  fmt.Sprintf("Within authorized radius of %s (%.1fm)", name, meters),
			}
		}
	}

	return LocationDecision{Verified: false, Message: "Not near any authorized location"}
}
