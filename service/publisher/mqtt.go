package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/lgr"
)

const publishTimeout = 5 * time.Second

type mqttService struct {
	client mqtt.Client
	prefix string
}

func NewMQTT(broker, username, password, topicPrefix string) (IService, error) {
	clientID := "facekit-" + uuid.New().String()

	lgr.Logger.Info("connecting to MQTT",
		slog.String("broker", broker),
		slog.String("clientID", clientID),
	)

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		lgr.Logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", broker, token.Error())
	}

	return &mqttService{
		client: client,
		prefix: topicPrefix,
	}, nil
}

func Topic(prefix string, capability model.Capability) string {
	return prefix + "/" + string(capability)
}

func (svc *mqttService) Publish(run model.RunRecord) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}

	token := svc.client.Publish(Topic(svc.prefix, run.Capability), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish of run %s timed out", run.ID)
	}
	return token.Error()
}

func (svc *mqttService) Close() error {
	svc.client.Disconnect(250)
	return nil
}
