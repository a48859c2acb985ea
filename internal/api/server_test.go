package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/capability/sim"
	"github.com/nothineazi/robotic-chain-control/internal/cell"
	"github.com/nothineazi/robotic-chain-control/internal/device"
	"github.com/nothineazi/robotic-chain-control/internal/execlog"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/config"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/database"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/logging"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
	"github.com/nothineazi/robotic-chain-control/internal/workflow"
	_ "github.com/nothineazi/robotic-chain-control/migrations"
)

var lineServices = []string{"Pick", "Convey", "ColorAndShapeDetection", "Place", "Move"}

type testEnv struct {
	srv     *Server
	handler http.Handler
	seq     *workflow.Sequencer
	vision  *sim.Robot
	feeder  *sim.Robot
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newStation(t *testing.T, id string, robot *sim.Robot, recorder *execlog.Recorder) (*device.Device, *registry.Store) {
	t.Helper()
	descs := make([]registry.ServiceDescriptor, 0, len(lineServices))
	for _, s := range lineServices {
		descs = append(descs, registry.ServiceDescriptor{Name: s, DriverFunction: s})
	}
	store, err := registry.Open(filepath.Join(t.TempDir(), id+".aas.xml"), registry.Options{ID: id, Services: descs})
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() }) //nolint:errcheck // Test cleanup

	dev, err := device.New(device.Config{ID: id, Registry: store, Caps: robot.Caps(), Recorder: recorder})
	if err != nil {
		t.Fatalf("device.New() error = %v", err)
	}
	return dev, store
}

// testServer wires two simulated devices, SQLite history and Prometheus
// collectors behind the router.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db := openTestDB(t)
	reg := prometheus.NewRegistry()
	metrics, err := execlog.NewMetrics("runchain", reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	recorder := execlog.NewRecorder(execlog.NewSQLiteRepository(db.DB), metrics)

	visionRobot, feederRobot := sim.New(), sim.New()
	visionDev, visionStore := newStation(t, "ned2", visionRobot, recorder)
	feederDev, feederStore := newStation(t, "wlkata", feederRobot, recorder)

	pose := func(x float64) []float64 { return []float64{x, 0, 0, 0, 0, 0} }
	visionCell, err := cell.NewVisionCell(cell.VisionConfig{
		DeviceID:      "ned2",
		SensorTimeout: 200 * time.Millisecond,
		PollInterval:  2 * time.Millisecond,
		Points: capability.Points{
			capability.PointObserve:       pose(1),
			capability.PointReload:        pose(2),
			capability.PointSafePick:      pose(3),
			capability.PointPick:          pose(4),
			capability.PointConveyorStart: pose(5),
		},
	}, visionRobot.Caps(), nil)
	if err != nil {
		t.Fatalf("NewVisionCell() error = %v", err)
	}
	feederCell := cell.NewConveyorCell(feederRobot.Caps(), nil)

	tasks := workflow.NewSQLiteTaskRepository(db.DB)
	seq := workflow.NewSequencer(workflow.SequencerConfig{Store: tasks})
	t.Cleanup(func() { seq.Shutdown(context.Background()) }) //nolint:errcheck // Test cleanup

	srv, err := New(Deps{
		Logger: logging.Discard(),
		Stations: []*Station{
			{Device: visionDev, Registry: visionStore, Vision: visionCell},
			{Device: feederDev, Registry: feederStore, Feeder: feederCell},
		},
		Sequencer: seq,
		NewBuild: func(targets []workflow.Target) (*workflow.Build, error) {
			return &workflow.Build{
				Targets:    targets,
				Vision:     visionDev,
				VisionOps:  visionCell,
				Handoff:    feederDev,
				HandoffOps: feederCell,
			}, nil
		},
		Executions: execlog.NewSQLiteRepository(db.DB),
		History:    tasks,
		DB:         db.DB,
		Gatherer:   reg,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, handler: srv.Handler(), seq: seq, vision: visionRobot, feeder: feederRobot}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_Validation(t *testing.T) {
	seq := workflow.NewSequencer(workflow.SequencerConfig{})
	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Sequencer: seq}},
		{"no stations", Deps{Logger: logging.Discard(), Sequencer: seq}},
		{"nil station", Deps{Logger: logging.Discard(), Sequencer: seq, Stations: []*Station{nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestDevices(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[struct {
		Devices []DeviceView `json:"devices"`
		Count   int          `json:"count"`
	}](t, rec)
	if list.Count != 2 || list.Devices[0].ID != "ned2" || list.Devices[1].ID != "wlkata" {
		t.Fatalf("devices = %+v", list.Devices)
	}
	if d := list.Devices[0]; d.State != registry.StateIdle || d.Services != len(lineServices) || len(d.Workflows) != 3 {
		t.Errorf("ned2 = %+v", d)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/devices/ur5", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d", rec.Code)
	}
}

func TestDeviceState(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusOK},
		{"set error", http.MethodPut, `{"state":"Error"}`, http.StatusOK},
		{"reset idle", http.MethodPut, `{"state":"Idle"}`, http.StatusOK},
		{"invalid state", http.MethodPut, `{"state":"Sleeping"}`, http.StatusBadRequest},
		{"bad json", http.MethodPut, `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, "/api/v1/devices/ned2/state", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/v1/devices/ned2/state", "")
	body := decode[struct {
		State  registry.State      `json:"state"`
		States registry.StateFlags `json:"states"`
	}](t, rec)
	if body.State != registry.StateIdle || !body.States[registry.StateIdle] || body.States[registry.StateError] {
		t.Errorf("state = %+v", body)
	}
}

func TestServices(t *testing.T) {
	env := testServer(t)
	base := "/api/v1/devices/ned2/services"

	steps := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"list", http.MethodGet, base, "", http.StatusOK},
		{"query", http.MethodGet, base + "/Pick", "", http.StatusOK},
		{"query is case sensitive", http.MethodGet, base + "/pick", "", http.StatusNotFound},
		{"add", http.MethodPost, base, `{"name":"Scan","driver_function":"scan","effector":"camera"}`, http.StatusCreated},
		{"add duplicate", http.MethodPost, base, `{"name":"Scan"}`, http.StatusConflict},
		{"add unnamed", http.MethodPost, base, `{"driver_function":"x"}`, http.StatusBadRequest},
		{"configure", http.MethodPut, base + "/Scan", `{"driver_function":"scan_v2"}`, http.StatusOK},
		{"configure missing", http.MethodPut, base + "/Weld", `{}`, http.StatusNotFound},
		{"remove", http.MethodDelete, base + "/Scan", "", http.StatusNoContent},
		{"remove again", http.MethodDelete, base + "/Scan", "", http.StatusNotFound},
		{"bad json", http.MethodPost, base, `{`, http.StatusBadRequest},
	}
	for _, tt := range steps {
		rec := env.do(t, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d: %s", tt.name, rec.Code, tt.want, rec.Body)
		}
	}

	list := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, base, ""))
	if list.Count != len(lineServices) {
		t.Errorf("services after add+remove = %d, want %d", list.Count, len(lineServices))
	}
}

func TestPickReplaceAndExecutions(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/ned2/workflows/pick-replace", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	view := decode[WorkflowView](t, rec)
	if !view.OK || len(view.Steps) != 5 || view.Detection == nil || !view.Detection.Found {
		t.Fatalf("view = %+v", view)
	}
	for _, s := range view.Steps {
		if s.RecordID == "" {
			t.Errorf("step %s has no record ID", s.Service)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/executions?device_id=ned2&status=success", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("executions status = %d: %s", rec.Code, rec.Body)
	}
	page := decode[execlog.ListResult](t, rec)
	if page.Total != 5 || len(page.Records) != 5 {
		t.Errorf("executions total = %d, records = %d", page.Total, len(page.Records))
	}

	for _, q := range []string{"status=maybe", "limit=x", "offset=-1"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/executions?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}

	rec = env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "runchain_service_executions_total") {
		t.Errorf("/metrics = %d, missing execution counter", rec.Code)
	}
}

func TestWorkflowRouting(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"vision test", "/api/v1/devices/ned2/workflows/vision-test", "", http.StatusOK},
		{"pick-replace without vision", "/api/v1/devices/wlkata/workflows/pick-replace", "", http.StatusConflict},
		{"feed", "/api/v1/devices/wlkata/workflows/feed", `{"shape":"circle","color":"red"}`, http.StatusOK},
		{"feed bad shape", "/api/v1/devices/wlkata/workflows/feed", `{"shape":"hexagon","color":"red"}`, http.StatusBadRequest},
		{"feed without feeder", "/api/v1/devices/ned2/workflows/feed", `{"shape":"circle","color":"red"}`, http.StatusConflict},
		{"unknown device", "/api/v1/devices/ur5/workflows/vision-test", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestWorkflow_ReportsUnavailableService(t *testing.T) {
	env := testServer(t)
	if rec := env.do(t, http.MethodDelete, "/api/v1/devices/ned2/services/Convey", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", rec.Code)
	}

	view := decode[WorkflowView](t, env.do(t, http.MethodPost, "/api/v1/devices/ned2/workflows/pick-replace", ""))
	if view.OK || view.Status != workflow.StatusAborted || view.Skipped != 3 {
		t.Errorf("view = %+v", view)
	}
	if last := view.Steps[len(view.Steps)-1]; last.ErrorKind != "service_unavailable" || last.DurationMS != 0 {
		t.Errorf("last step = %+v", last)
	}
}

func waitBuild(t *testing.T, env *testEnv, id string) workflow.BuildReport {
	t.Helper()
	task, err := env.seq.Task(id)
	if err != nil {
		t.Fatalf("Task(%s) error = %v", id, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := task.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return rep
}

func TestBuilds(t *testing.T) {
	env := testServer(t)
	env.vision.QueueDetections(
		capability.Detection{Found: true, Shape: capability.ShapeSquare, Color: capability.ColorBlue},
		capability.Detection{Found: true, Shape: capability.ShapeCircle, Color: capability.ColorRed},
	)

	rec := env.do(t, http.MethodPost, "/api/v1/builds",
		`{"targets":[{"name":"left","shape":"Square","color":"Blue"},{"shape":"circle","color":"red"}],"pre_delay_ms":0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	started := decode[BuildView](t, rec)
	if started.Device != "ned2" || started.Targets != 2 {
		t.Errorf("started = %+v", started)
	}

	if rep := waitBuild(t, env, started.ID); !rep.OK() {
		t.Fatalf("build status = %s, err = %v", rep.Status, rep.Err)
	}
	if n := env.feeder.CountCalls(sim.OpMoveConveyorBy); n != 1 {
		t.Errorf("hand-off calls = %d, want 1", n)
	}

	got := decode[BuildView](t, env.do(t, http.MethodGet, "/api/v1/builds/"+started.ID, ""))
	if got.Status != workflow.StatusCompleted || got.Placed != 2 || len(got.Outcomes) != 2 || got.Outcomes[1].Target.Name != "target_1" {
		t.Errorf("build = %+v", got)
	}

	list := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/builds", ""))
	if list.Count != 1 {
		t.Errorf("builds = %d, want 1", list.Count)
	}

	history := decode[struct {
		Builds []workflow.TaskInfo `json:"builds"`
	}](t, env.do(t, http.MethodGet, "/api/v1/builds/history?device_id=ned2", ""))
	if len(history.Builds) != 1 || history.Builds[0].Status != workflow.StatusCompleted {
		t.Errorf("history = %+v", history.Builds)
	}

	errs := []struct {
		name string
		body string
		want int
	}{
		{"no targets", `{"targets":[]}`, http.StatusBadRequest},
		{"bad color", `{"targets":[{"shape":"square","color":"purple"}]}`, http.StatusBadRequest},
		{"too many targets", `{"targets":[` + strings.Repeat(`{"shape":"square","color":"red"},`, 4) + `{"shape":"square","color":"red"}]}`, http.StatusBadRequest},
		{"negative delay", `{"targets":[{"shape":"square","color":"red"}],"pre_delay_ms":-1}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range errs {
		if rec := env.do(t, http.MethodPost, "/api/v1/builds", tt.body); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d: %s", tt.name, rec.Code, tt.want, rec.Body)
		}
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/builds/bld-missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing build status = %d", rec.Code)
	}
}

func TestBuilds_BusyDeviceAndCancel(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/builds", `{"targets":[{"shape":"square","color":"blue"}],"pre_delay_ms":3600000}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	id := decode[BuildView](t, rec).ID

	if rec := env.do(t, http.MethodPost, "/api/v1/builds", `{"targets":[{"shape":"square","color":"blue"}]}`); rec.Code != http.StatusConflict {
		t.Errorf("second build status = %d, want 409", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/devices/ned2/workflows/vision-test", ""); rec.Code != http.StatusConflict {
		t.Errorf("workflow during build status = %d, want 409", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/v1/devices/ned2/state", `{"state":"Idle"}`); rec.Code != http.StatusConflict {
		t.Errorf("state change during build status = %d, want 409", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/builds/"+id+"/cancel", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if rep := waitBuild(t, env, id); rep.Status != workflow.StatusCancelled {
		t.Errorf("status = %s, want cancelled", rep.Status)
	}
}

func TestSystemMetrics(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, http.MethodGet, "/api/v1/system", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode[SystemMetrics](t, rec)
	if m.Version != "test" || m.Devices.Total != 2 || m.Devices.ByState["Idle"] != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.MQTT.Enabled || m.InfluxDB.Enabled {
		t.Error("optional connections reported as enabled")
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime metrics missing")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	env := testServer(t)
	env.srv.cfg = config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}}

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
