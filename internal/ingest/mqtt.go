// README: MQTT ingest for hardware GPS trackers mounted on ambulances.
// Tracker fixes flow into the same location service as websocket reports.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"sirena/internal/types"
)

// DefaultTopic is the tracker position topic; the {id} segment is the
// ambulance id.
const DefaultTopic = "sirena/ambulancias/+/ubicacion"

// PositionReporter receives validated tracker fixes.
type PositionReporter interface {
	ReportPosition(ctx context.Context, id types.ID, lat, lng float64) error
}

type trackerPayload struct {
	Latitud  float64 `json:"latitud"`
	Longitud float64 `json:"longitud"`
}

// MQTTIngest subscribes to the tracker topic and forwards fixes.
type MQTTIngest struct {
	client   mqtt.Client
	topic    string
	reporter PositionReporter
	log      zerolog.Logger
}

func NewMQTTIngest(broker, clientID, username, password, topic string, reporter PositionReporter, log zerolog.Logger) *MQTTIngest {
	if topic == "" {
		topic = DefaultTopic
	}
	in := &MQTTIngest{
		topic:    topic,
		reporter: reporter,
		log:      log.With().Str("component", "ingest").Logger(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(in.handle)

	in.client = mqtt.NewClient(opts)
	return in
}

// Start connects and subscribes. Tracker ingest is best-effort extra input;
// the caller decides whether a failed broker is fatal.
func (in *MQTTIngest) Start() error {
	if token := in.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("conectar al broker MQTT: %w", token.Error())
	}
	if token := in.client.Subscribe(in.topic, 0, in.handle); token.Wait() && token.Error() != nil {
		return fmt.Errorf("suscribirse a %s: %w", in.topic, token.Error())
	}
	in.log.Info().Str("topic", in.topic).Msg("ingesta MQTT activa")
	return nil
}

// Stop disconnects from the broker.
func (in *MQTTIngest) Stop() {
	in.client.Disconnect(250)
}

func (in *MQTTIngest) handle(_ mqtt.Client, msg mqtt.Message) {
	id, err := ambulanceIDFromTopic(msg.Topic())
	if err != nil {
		in.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("topic inesperado")
		return
	}

	var payload trackerPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		in.log.Warn().Err(err).Int64("ambulancia", int64(id)).Msg("payload de tracker inválido")
		return
	}

	if err := in.reporter.ReportPosition(context.Background(), id, payload.Latitud, payload.Longitud); err != nil {
		in.log.Warn().Err(err).Int64("ambulancia", int64(id)).Msg("registrar fix de tracker")
	}
}

// ambulanceIDFromTopic extracts the unit id from
// sirena/ambulancias/{id}/ubicacion.
func ambulanceIDFromTopic(topic string) (types.ID, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "sirena" || parts[1] != "ambulancias" || parts[3] != "ubicacion" {
		return 0, fmt.Errorf("formato de topic desconocido")
	}
	n, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("id de ambulancia inválido en el topic")
	}
	return types.ID(n), nil
}
