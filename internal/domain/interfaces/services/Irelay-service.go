package Iservices

import (
	"context"

	"transcript-relay/internal/domain/dto"
)

type IRelayService interface {
	HandleMeetingStarted(notification dto.RTMSStarted)
	HandleMeetingStopped(notification dto.RTMSStopped)
	Shutdown(ctx context.Context)
}
