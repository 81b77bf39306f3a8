package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"

	"handraise/internal/api"
	"handraise/internal/config"
	"handraise/pkg/database"
	"handraise/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = database.DriverMemory
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) (*Application, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app, err := NewApplication(ctx, cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := app.Stop(stopCtx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return app, app.GetAddr()
}

func call(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestApplication_ConfigurationValidation(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Port = -1
	if _, err := NewApplication(context.Background(), cfg); err == nil {
		t.Error("Expected invalid configuration to be rejected")
	}

	cfg = testConfig()
	cfg.Notifications.SuppressRule = "kind =="
	if _, err := NewApplication(context.Background(), cfg); err == nil {
		t.Error("Expected an invalid suppression rule to be rejected")
	}

	cfg = testConfig()
	cfg.Jobs.AutoCloseSchedule = "whenever"
	if _, err := NewApplication(context.Background(), cfg); err == nil {
		t.Error("Expected an invalid schedule to be rejected")
	}
}

// Scenario: create a class, join, raise a hand, read the statistics, then
// close and watch the teacher's socket hear about it.
func TestApplication_ClassroomScenario(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()
	_, addr := startApp(t, cfg)
	base := "http://" + addr

	var health api.HealthResponse
	if code := call(t, "GET", base+"/health", nil, &health); code != http.StatusOK || health.Status != "healthy" {
		t.Fatalf("health: %d %+v", code, health)
	}

	var created api.ClassResponse
	if code := call(t, "POST", base+"/api/classes", map[string]string{"name": "Physics"}, &created); code != http.StatusCreated {
		t.Fatalf("create class: %d", code)
	}
	code := created.Class.Code

	teacher, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?class_code="+code+"&role=teacher&user_id=t1", nil)
	if err != nil {
		t.Fatalf("teacher dial: %v", err)
	}
	defer teacher.Close()

	var joined api.JoinResponse
	if status := call(t, "POST", base+"/api/classes/"+code+"/students", map[string]string{"name": "Ada"}, &joined); status != http.StatusCreated {
		t.Fatalf("join: %d", status)
	}
	ada := joined.Student.ID

	if status := call(t, "PUT", base+"/api/classes/"+code+"/students/"+ada+"/hand", map[string]bool{"raised": true}, nil); status != http.StatusOK {
		t.Fatalf("raise: %d", status)
	}

	var summary types.ClassStatistics
	if status := call(t, "GET", base+"/api/classes/"+code+"/statistics", nil, &summary); status != http.StatusOK {
		t.Fatalf("statistics: %d", status)
	}
	if summary.TotalStudents != 1 || summary.TotalHandRaises != 1 || summary.ActiveStudents != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	if status := call(t, "POST", base+"/api/classes/"+code+"/close", nil, nil); status != http.StatusOK {
		t.Fatalf("close: %d", status)
	}

	// The close broadcast reaches the teacher after any roster frames
	_ = teacher.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := teacher.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for class_closed: %v", err)
		}
		var frame struct {
			Type      string `json:"type"`
			ClassCode string `json:"class_code"`
		}
		_ = json.Unmarshal(data, &frame)
		if frame.Type == "class_closed" {
			if frame.ClassCode != code {
				t.Errorf("Expected class_closed for %s, got %s", code, frame.ClassCode)
			}
			break
		}
	}

	var students api.ListStudentsResponse
	call(t, "GET", base+"/api/classes/"+code+"/students?active=true", nil, &students)
	if len(students.Students) != 0 {
		t.Errorf("Close should cascade to the roster, %d still active", len(students.Students))
	}
}
