package models

import "time"

// DeviceKey identifies one sensor behind one gateway. Stable for the
// device's lifetime; all per-device decision state is keyed by it.
type DeviceKey struct {
	GatewayName string `json:"gateway_name"`
	SensorName  string `json:"sensor_name"`
}

// String renders the key in the form used in store keys and logs.
func (k DeviceKey) String() string {
	return k.GatewayName + ":" + k.SensorName
}

// PredictionTask is one unit of submitted inference work. Immutable once
// enqueued; consumed exactly once by a worker.
type PredictionTask struct {
	Handle      string    `json:"handle"`
	GatewayName string    `json:"gateway_name"`
	SensorName  string    `json:"sensor_name"`
	Reading     []float64 `json:"reading"`
	LowBattery  bool      `json:"low_battery"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Device returns the task's device key.
func (t PredictionTask) Device() DeviceKey {
	return DeviceKey{GatewayName: t.GatewayName, SensorName: t.SensorName}
}

// PredictionResult is a completed classification produced by a worker.
type PredictionResult struct {
	GatewayName string `json:"gateway_name"`
	SensorName  string `json:"sensor_name"`
	Prediction  int    `json:"prediction"`
	LowBattery  bool   `json:"low_battery"`
}

// Device returns the result's device key.
func (r PredictionResult) Device() DeviceKey {
	return DeviceKey{GatewayName: r.GatewayName, SensorName: r.SensorName}
}

// AnnotatedResult is a prediction result after correlation: the raw
// classification plus the tier recommended for the device's next reading.
// NextLayer is nil when adaptive inference is disabled.
type AnnotatedResult struct {
	Result      PredictionResult `json:"result"`
	SourceLayer Tier             `json:"inference_layer"`
	NextLayer   *Tier            `json:"next_inference_layer,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// TaskStatus tracks a submitted task through the polling-mode lifecycle.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusSuccess TaskStatus = "SUCCESS"
	TaskStatusFailure TaskStatus = "FAILURE"
)

// Final reports whether the status is terminal.
func (s TaskStatus) Final() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure
}

// TaskRecord is the persisted view of a submitted prediction task.
type TaskRecord struct {
	Handle        string
	Task          PredictionTask
	Status        TaskStatus
	Result        *AnnotatedResult
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
