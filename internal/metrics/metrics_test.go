package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandlerSummary(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/users", 200, 25*time.Millisecond, 512)
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/coins/transfer", 409, 5*time.Millisecond, 96)
	m.IncAuthSuccess("ADMIN")
	m.IncAuthFailure("bad_credentials")
	m.IncCoinTransfer("transfer")
	m.IncCoinTransferReject("insufficient_funds")
	m.IncSealVerification("match")
	m.IncSealVerification("mismatch")
	m.IncUpload("ok")
	m.IncUpload("too_large")
	m.RecorderEntriesTotal.Add(3)

	rr := httptest.NewRecorder()
	m.Handler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var summary Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}

	if summary.HTTP.TotalRequests != 2 {
		t.Errorf("totalRequests = %v, want 2", summary.HTTP.TotalRequests)
	}
	if summary.HTTP.ErrorRate != 0.5 {
		t.Errorf("errorRate = %v, want 0.5", summary.HTTP.ErrorRate)
	}
	if summary.Auth.Successes != 1 || summary.Auth.Failures != 1 {
		t.Errorf("auth = %+v, want 1 success and 1 failure", summary.Auth)
	}
	if summary.Coins.Transfers != 1 || summary.Coins.Rejects != 1 {
		t.Errorf("coins = %+v, want 1 transfer and 1 reject", summary.Coins)
	}
	if summary.Trips.SealVerifications != 2 || summary.Trips.SealMismatches != 1 {
		t.Errorf("trips = %+v, want 2 verifications and 1 mismatch", summary.Trips)
	}
	if summary.Uploads.Total != 2 || summary.Uploads.Rejected != 1 {
		t.Errorf("uploads = %+v, want 2 total and 1 rejected", summary.Uploads)
	}
	if summary.Recorder.Entries != 3 {
		t.Errorf("recorder entries = %v, want 3", summary.Recorder.Entries)
	}
}

func TestDBPoolCollector(t *testing.T) {
	m := New()
	m.RegisterDBPoolCollector(func() (int32, int32, int32) {
		return 10, 4, 6
	})

	rr := httptest.NewRecorder()
	m.Handler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var summary Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}

	if summary.DB.TotalConns != 10 || summary.DB.IdleConns != 4 || summary.DB.AcquiredConns != 6 {
		t.Errorf("db = %+v, want 10/4/6", summary.DB)
	}
}
