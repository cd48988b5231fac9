package config

// Model keys as exposed by the registries.
const (
	BlazeFaceName       = "blazeface"
	MediaPipeName       = "mediapipe"
	UltralightName      = "ultralight"
	TPSName             = "tps"
	ResNetInceptionName = "resnet_inception"
	EfficientNetName    = "efficientnet"
)

// Inference runtimes a model file can be served by.
const (
	RuntimeONNX   = "onnx"
	RuntimeTFLite = "tflite"
	RuntimeDNN    = "dnn"
)

// ModelParameters describes how to load and drive one pretrained model.
// ModelPaths holds extra files keyed by role (tps: "kp_detector", "generator").
type ModelParameters struct {
	Runtime             string
	ModelPath           string
	ModelPaths          map[string]string
	InputWidth          int
	InputHeight         int
	ConfidenceThreshold float64
	NMSThreshold        float64
	Threads             int
}

type IService interface {
	GetModeMaxShutdownTime() int
	GetModelsFolder() string
	GetModelParameters(name string) ModelParameters
	GetOnnxLibraryPath() string
	GetOutputFolder() string
	GetMaxWorkers() int
	GetDataStore() string
	GetDataFolder() string
	GetSQLitePath() string
	GetJournalFile() string
	GetMQTTBroker() string
	GetMQTTUsername() string
	GetMQTTPassword() string
	GetMQTTTopicPrefix() string
	GetHTTPPort() int
}
