package http

import (
	"github.com/taskwire/taskwire-server/internal/core"
	"github.com/taskwire/taskwire-server/internal/proto"
)

// outboundFromEvent maps a core event to its wire representation. The payload
// builders are the same ones the REST handlers serialize, so the broadcast
// echo of a mutation is structurally identical to its REST response.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventTaskCreated:
		return eventOutbound(proto.EventTaskCreated, proto.TaskFrom(event.Task))
	case core.EventTaskUpdated:
		return eventOutbound(proto.EventTaskUpdated, proto.TaskFrom(event.Task))
	case core.EventTaskDeleted:
		return eventOutbound(proto.EventTaskDeleted, proto.TaskDeletedPayload{
			TaskID:    event.TaskID,
			ProjectID: event.ProjectID,
		})
	case core.EventProjectCreated:
		return eventOutbound(proto.EventProjectCreated, proto.ProjectFrom(event.Project))
	case core.EventProjectUpdated:
		return eventOutbound(proto.EventProjectUpdated, proto.ProjectFrom(event.Project))
	case core.EventProjectDeleted:
		return eventOutbound(proto.EventProjectDeleted, proto.ProjectDeletedPayload{
			ProjectID: event.ProjectID,
		})
	case core.EventMemberAdded:
		return eventOutbound(proto.EventMemberAdded, proto.MemberAddedPayload{
			Project:   proto.ProjectFrom(event.Project),
			NewMember: proto.UserFrom(event.Member),
		})
	case core.EventMemberRemoved:
		return eventOutbound(proto.EventMemberRemoved, proto.MemberRemovedPayload{
			Project:         proto.ProjectFrom(event.Project),
			RemovedMemberID: event.MemberID,
		})
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: name,
		Data:  data,
	}
}
