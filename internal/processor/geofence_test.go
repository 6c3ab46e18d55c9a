package processor

import (
	"testing"

	"ingestpipe/internal/config"
	"ingestpipe/internal/model"
)

func TestGeofenceProcessor_InsideRestrictedRegion(t *testing.T) {
	p := NewGeofenceProcessor([]config.Region{
		{Name: "area51", MinLat: 37, MaxLat: 38, MinLon: -116, MaxLon: -115},
	})
	reqs, err := p.Process(t.Context(), sampleAt(37.5, -115.5), "id1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 || reqs[0].AlertType != model.AlertTypeGeofence {
		t.Fatalf("expected one GEOFENCE alert, got %+v", reqs)
	}
}

func TestGeofenceProcessor_ForbiddenRegionEscalatesMessage(t *testing.T) {
	p := NewGeofenceProcessor([]config.Region{
		{Name: "vault", MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1, Forbidden: true},
	})
	reqs, err := p.Process(t.Context(), sampleAt(0.5, 0.5), "id1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected one alert, got %+v", reqs)
	}
	if got := reqs[0].Message; got != "Sample inside forbidden restricted area" {
		t.Fatalf("expected forbidden escalation wording, got %q", got)
	}
}

func TestGeofenceProcessor_OutsideAnyRegionNoAlert(t *testing.T) {
	p := NewGeofenceProcessor([]config.Region{
		{Name: "area51", MinLat: 37, MaxLat: 38, MinLon: -116, MaxLon: -115},
	})
	reqs, err := p.Process(t.Context(), sampleAt(40.0, -74.0), "id1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected no alert outside configured regions, got %+v", reqs)
	}
}

func TestGeofenceProcessor_NoRegionsConfiguredNeverAlerts(t *testing.T) {
	p := NewGeofenceProcessor(nil)
	reqs, err := p.Process(t.Context(), sampleAt(0, 0), "id1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected no alert with zero configured regions, got %+v", reqs)
	}
}
