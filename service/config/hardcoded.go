package config

import (
	"path/filepath"
)

type hardcodedService struct {
	modelsFolder string
}

func NewHardCoded() IService {
	return &hardcodedService{
		modelsFolder: "./models",
	}
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return 5
}

func (svc *hardcodedService) GetModelsFolder() string {
	return svc.modelsFolder
}

func (svc *hardcodedService) GetModelParameters(name string) ModelParameters {
	return defaultModelParameters(svc.GetModelsFolder(), name)
}

func (svc *hardcodedService) GetOnnxLibraryPath() string {
	// Empty means the runtime's own default lookup
	return ""
}

func (svc *hardcodedService) GetOutputFolder() string {
	return "./output"
}

func (svc *hardcodedService) GetMaxWorkers() int {
	return 0
}

func (svc *hardcodedService) GetDataStore() string {
	return "files"
}

func (svc *hardcodedService) GetDataFolder() string {
	return "./data"
}

func (svc *hardcodedService) GetSQLitePath() string {
	return filepath.Join(svc.GetDataFolder(), "runs.db")
}

func (svc *hardcodedService) GetJournalFile() string {
	return ""
}

func (svc *hardcodedService) GetMQTTBroker() string {
	return ""
}

func (svc *hardcodedService) GetMQTTUsername() string {
	return ""
}

func (svc *hardcodedService) GetMQTTPassword() string {
	return ""
}

func (svc *hardcodedService) GetMQTTTopicPrefix() string {
	return "facekit"
}

func (svc *hardcodedService) GetHTTPPort() int {
	return 8080
}

func defaultModelParameters(folder, name string) ModelParameters {
	switch name {
	case BlazeFaceName:
		return ModelParameters{
			Runtime:             RuntimeONNX,
			ModelPath:           filepath.Join(folder, "blazeface.onnx"),
			InputWidth:          128,
			InputHeight:         128,
			ConfidenceThreshold: 0.75,
			NMSThreshold:        0.3,
		}
	case MediaPipeName:
		return ModelParameters{
			Runtime:             RuntimeTFLite,
			ModelPath:           filepath.Join(folder, "face_detection_short_range.tflite"),
			InputWidth:          128,
			InputHeight:         128,
			ConfidenceThreshold: 0.5,
			NMSThreshold:        0.3,
			Threads:             2,
		}
	case UltralightName:
		return ModelParameters{
			Runtime:             RuntimeDNN,
			ModelPath:           filepath.Join(folder, "version-RFB-320.onnx"),
			InputWidth:          320,
			InputHeight:         240,
			ConfidenceThreshold: 0.7,
			NMSThreshold:        0.3,
		}
	case TPSName:
		return ModelParameters{
			Runtime: RuntimeONNX,
			ModelPaths: map[string]string{
				"kp_detector": filepath.Join(folder, "tps_kp_detector.onnx"),
				"generator":   filepath.Join(folder, "tps_generator.onnx"),
			},
			InputWidth:  256,
			InputHeight: 256,
		}
	case ResNetInceptionName:
		return ModelParameters{
			Runtime:             RuntimeONNX,
			ModelPath:           filepath.Join(folder, "resnet_inception.onnx"),
			InputWidth:          256,
			InputHeight:         256,
			ConfidenceThreshold: 0.5,
		}
	case EfficientNetName:
		return ModelParameters{
			Runtime:             RuntimeONNX,
			ModelPath:           filepath.Join(folder, "efficientnet_b4.onnx"),
			InputWidth:          224,
			InputHeight:         224,
			ConfidenceThreshold: 0.5,
		}
	}

	return ModelParameters{}
}
