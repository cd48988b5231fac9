package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// envService reads FACEKIT_* variables and falls back to the hardcoded defaults.
type envService struct {
	defaults IService
}

func NewEnv() IService {
	return &envService{
		defaults: NewHardCoded(),
	}
}

func (svc *envService) GetModeMaxShutdownTime() int {
	return getEnvAsInt("FACEKIT_SHUTDOWN_SECONDS", svc.defaults.GetModeMaxShutdownTime())
}

func (svc *envService) GetModelsFolder() string {
	return getEnv("FACEKIT_MODELS_DIR", svc.defaults.GetModelsFolder())
}

// GetModelParameters lets FACEKIT_<NAME>_MODEL and FACEKIT_<NAME>_THRESHOLD
// override the defaults, e.g. FACEKIT_BLAZEFACE_THRESHOLD=0.6.
func (svc *envService) GetModelParameters(name string) ModelParameters {
	params := defaultModelParameters(svc.GetModelsFolder(), name)
	prefix := "FACEKIT_" + strings.ToUpper(name)

	params.ModelPath = getEnv(prefix+"_MODEL", params.ModelPath)
	params.ConfidenceThreshold = getEnvAsFloat(prefix+"_THRESHOLD", params.ConfidenceThreshold)
	params.NMSThreshold = getEnvAsFloat(prefix+"_NMS", params.NMSThreshold)
	params.Threads = getEnvAsInt(prefix+"_THREADS", params.Threads)
	for role, path := range params.ModelPaths {
		params.ModelPaths[role] = getEnv(prefix+"_"+strings.ToUpper(role)+"_MODEL", path)
	}
	return params
}

func (svc *envService) GetOnnxLibraryPath() string {
	return getEnv("ONNXRUNTIME_LIB", svc.defaults.GetOnnxLibraryPath())
}

func (svc *envService) GetOutputFolder() string {
	return getEnv("FACEKIT_OUTPUT_DIR", svc.defaults.GetOutputFolder())
}

func (svc *envService) GetMaxWorkers() int {
	return getEnvAsInt("FACEKIT_WORKERS", svc.defaults.GetMaxWorkers())
}

func (svc *envService) GetDataStore() string {
	return getEnv("FACEKIT_DATA_STORE", svc.defaults.GetDataStore())
}

func (svc *envService) GetDataFolder() string {
	return getEnv("FACEKIT_DATA_DIR", svc.defaults.GetDataFolder())
}

// GetSQLitePath follows the data folder unless set on its own.
func (svc *envService) GetSQLitePath() string {
	return getEnv("FACEKIT_SQLITE_PATH", filepath.Join(svc.GetDataFolder(), "runs.db"))
}

func (svc *envService) GetJournalFile() string {
	return getEnv("FACEKIT_JOURNAL_FILE", svc.defaults.GetJournalFile())
}

func (svc *envService) GetMQTTBroker() string {
	return getEnv("MQTT_BROKER", svc.defaults.GetMQTTBroker())
}

func (svc *envService) GetMQTTUsername() string {
	return getEnv("MQTT_USERNAME", svc.defaults.GetMQTTUsername())
}

func (svc *envService) GetMQTTPassword() string {
	return getEnv("MQTT_PASSWORD", svc.defaults.GetMQTTPassword())
}

func (svc *envService) GetMQTTTopicPrefix() string {
	return getEnv("MQTT_TOPIC_PREFIX", svc.defaults.GetMQTTTopicPrefix())
}

func (svc *envService) GetHTTPPort() int {
	return getEnvAsInt("PORT", svc.defaults.GetHTTPPort())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
