package monitor

import (
	"net/http"
	"strings"
	"testing"
)

func TestConfidenceChartHandler(t *testing.T) {
	database := newTestDB(t)
	seedEvents(t, database)

	server := NewWebServer(WebServerConfig{Address: ":0", Engine: testEngine(t), DB: database})

	rr := serveRequest(t, server, "GET", "/debug/charts/confidence")

	if rr.Code != http.StatusOK {
		t.Fatalf("confidence chart returned status %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Error("chart page should reference the echarts runtime")
	}
	if !strings.Contains(body, "POI Classifications") {
		t.Error("chart page should contain its title")
	}
}

func TestConfidenceChartHandler_NoData(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0", Engine: testEngine(t), DB: newTestDB(t)})

	rr := serveRequest(t, server, "GET", "/debug/charts/confidence")

	if rr.Code != http.StatusNotFound {
		t.Errorf("confidence chart of empty DB returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestConfidenceChartHandler_NoDB(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0", Engine: testEngine(t)})

	rr := serveRequest(t, server, "GET", "/debug/charts/confidence")

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("confidence chart without DB returned %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestPassRateChartHandler(t *testing.T) {
	database := newTestDB(t)
	seedEvents(t, database)

	server := NewWebServer(WebServerConfig{Address: ":0", Engine: testEngine(t), DB: database})

	rr := serveRequest(t, server, "GET", "/debug/charts/passrate")

	if rr.Code != http.StatusOK {
		t.Fatalf("pass rate chart returned status %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Error("chart page should reference the echarts runtime")
	}
	if !strings.Contains(body, "Per-cycle pass rate") {
		t.Error("chart page should contain its title")
	}
}

func TestPassRateChartHandler_NoData(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0", Engine: testEngine(t), DB: newTestDB(t)})

	rr := serveRequest(t, server, "GET", "/debug/charts/passrate")

	if rr.Code != http.StatusNotFound {
		t.Errorf("pass rate chart of empty DB returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}
