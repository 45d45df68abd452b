package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestSubmitCommand_Success(t *testing.T) {
	resetViper()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			return
		}
		called = true

		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", got)
		}

		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)
		if reqBody["required_capability"] != "textile" {
			t.Errorf("expected required_capability=textile, got %v", reqBody["required_capability"])
		}
		if reqBody["estimated_duration_sec"] != float64(600) {
			t.Errorf("expected estimated_duration_sec=600, got %v", reqBody["estimated_duration_sec"])
		}
		if reqBody["materials_ready"] != true {
			t.Errorf("expected materials_ready=true, got %v", reqBody["materials_ready"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":            "7c9a1c2e-0000-0000-0000-000000000001",
			"wait_estimate_sec": 240,
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := executeCommand("submit", "--capability", "textile", "--duration", "600", "--cad", "cad://pattern-42")

	if !called {
		t.Error("expected submit endpoint to be called")
	}
	if !strings.Contains(output, "Job submitted") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "240") {
		t.Errorf("expected wait estimate in output, got: %s", output)
	}
}

func TestSubmitCommand_MissingToken(t *testing.T) {
	resetViper()

	viper.Set("url", "http://localhost:7171")
	viper.Set("token", "")

	output := executeCommand("submit", "--capability", "textile", "--duration", "600", "--cad", "cad://x")
	if !strings.Contains(output, "API token not found") {
		t.Errorf("expected token error message, got: %s", output)
	}
}

func TestSubmitCommand_MissingCAD(t *testing.T) {
	resetViper()

	submitCmd.Flags().Set("cad", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called when validation fails")
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := executeCommand("submit", "--capability", "textile", "--duration", "600")
	if !strings.Contains(output, "--cad is required") {
		t.Errorf("expected cad required error, got: %s", output)
	}
}

func TestSubmitCommand_ValidationRejected(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"validation failed","code":"unknown_capability"}`))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := executeCommand("submit", "--capability", "welding", "--duration", "600", "--cad", "cad://x")
	if !strings.Contains(output, "Submit failed (400)") {
		t.Errorf("expected 400 error in output, got: %s", output)
	}
	if !strings.Contains(output, "unknown_capability") {
		t.Errorf("expected rejection code in output, got: %s", output)
	}
}
