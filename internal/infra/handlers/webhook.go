package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"transcript-relay/internal/domain/dto"
	Iservices "transcript-relay/internal/domain/interfaces/services"
	"transcript-relay/internal/infra/logger"
)

type RelayHandlers struct {
	Logger       *logger.Logger
	RelayService Iservices.IRelayService
}

func NewRelayHandlers(logger *logger.Logger, relayService Iservices.IRelayService) *RelayHandlers {
	return &RelayHandlers{Logger: logger, RelayService: relayService}
}

// Webhook receives RTMS lifecycle notifications. The endpoint is
// ack-style: it answers 200 on receipt regardless of payload quality, so
// the sender never retries what is a data problem rather than a delivery
// problem. Bad payloads are logged and dropped.
func (h *RelayHandlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event dto.WebhookEvent
	err := json.NewDecoder(r.Body).Decode(&event)
	if err != nil {
		// A body that does not parse is a data problem, not a delivery
		// problem: ack it so the sender never redelivers it.
		h.Logger.Error(fmt.Sprintf("Dropping undecodable webhook body: %v", err))
		w.WriteHeader(http.StatusOK)
		return
	}
	defer r.Body.Close()

	switch event.Event {
	case dto.EventRTMSStarted:
		started, err := dto.NormalizeRTMSStarted(event.Payload)
		if err != nil {
			h.Logger.Error(fmt.Sprintf("Dropping rtms_started event: %v", err))
			break
		}
		h.Logger.Info(fmt.Sprintf("RTMS started for meeting %s", started.MeetingUUID))
		go h.RelayService.HandleMeetingStarted(started)

	case dto.EventRTMSStopped:
		stopped, err := dto.NormalizeRTMSStopped(event.Payload)
		if err != nil {
			h.Logger.Error(fmt.Sprintf("Dropping rtms_stopped event: %v", err))
			break
		}
		h.Logger.Info(fmt.Sprintf("RTMS stopped for meeting %s", stopped.MeetingUUID))
		go h.RelayService.HandleMeetingStopped(stopped)

	default:
		h.Logger.Debug(fmt.Sprintf("Ignoring webhook event %q", event.Event))
	}

	w.WriteHeader(http.StatusOK)
}
