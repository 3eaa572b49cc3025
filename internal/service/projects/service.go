package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire-server/internal/core"
	"github.com/taskwire/taskwire-server/internal/store"
)

var (
	// ErrNotMember is returned when the acting user is not a project member.
	ErrNotMember = errors.New("not a project member")
	// ErrNotOwner is returned when the operation requires project ownership.
	ErrNotOwner = errors.New("not the project owner")
	// ErrOwnerRemoval is returned when trying to remove the owner from the project.
	ErrOwnerRemoval = errors.New("cannot remove the project owner")
	// ErrInvalidName is returned when the project name is empty or too long.
	ErrInvalidName = errors.New("invalid project name")
)

// Service is the project mutation pipeline. Every successful mutation commits
// the write, re-reads the fully populated project and publishes it to the
// project's room before returning.
type Service struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewService creates a project service.
func NewService(st store.Store, hub *core.Hub, logger *zerolog.Logger) *Service {
	return &Service{store: st, hub: hub, log: logger}
}

// Create makes a new project owned by userID and broadcasts project-created.
func (s *Service) Create(ctx context.Context, userID int64, name, color string) (*store.ProjectDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidName
	}
	if color == "" {
		color = "#808080"
	}

	project, err := s.store.CreateProject(ctx, name, color, userID)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	detail, err := s.store.GetProjectDetail(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("load project detail: %w", err)
	}

	// The room is empty at this point; published for uniformity with other
	// mutations so every commit is followed by exactly one event.
	s.hub.Publish(project.ID, &core.Event{
		Kind:      core.EventProjectCreated,
		ProjectID: project.ID,
		Project:   detail,
	})

	s.log.Info().
		Int64("project_id", project.ID).
		Int64("owner_id", userID).
		Str("name", name).
		Msg("project created")
	return detail, nil
}

// Get returns a populated project to a member.
func (s *Service) Get(ctx context.Context, userID, projectID int64) (*store.ProjectDetail, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.store.GetProjectDetail(ctx, projectID)
}

// List returns the projects the user belongs to.
func (s *Service) List(ctx context.Context, userID int64) ([]*store.Project, error) {
	return s.store.ListProjects(ctx, userID)
}

// Update changes name and color and broadcasts project-updated.
func (s *Service) Update(ctx context.Context, userID, projectID int64, name, color string) (*store.ProjectDetail, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidName
	}
	if color == "" {
		current, err := s.store.GetProjectByID(ctx, projectID)
		if err != nil {
			return nil, err
		}
		color = current.Color
	}

	if err := s.store.UpdateProject(ctx, projectID, name, color); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	detail, err := s.store.GetProjectDetail(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project detail: %w", err)
	}

	s.hub.Publish(projectID, &core.Event{
		Kind:      core.EventProjectUpdated,
		ProjectID: projectID,
		Project:   detail,
	})

	s.log.Info().
		Int64("project_id", projectID).
		Int64("user_id", userID).
		Msg("project updated")
	return detail, nil
}

// Delete removes a project. Owner only. Broadcasts project-deleted, then
// disbands the room; there is nothing left to be joined to.
func (s *Service) Delete(ctx context.Context, userID, projectID int64) error {
	project, err := s.store.GetProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != userID {
		return ErrNotOwner
	}

	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	s.hub.Publish(projectID, &core.Event{
		Kind:      core.EventProjectDeleted,
		ProjectID: projectID,
	})
	s.hub.DisbandRoom(projectID)

	s.log.Info().
		Int64("project_id", projectID).
		Int64("user_id", userID).
		Msg("project deleted")
	return nil
}

// AddMember adds a user to the project and broadcasts project-member-added
// with the full updated project.
func (s *Service) AddMember(ctx context.Context, userID, projectID, newMemberID int64) (*store.ProjectDetail, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}

	member, err := s.store.GetUserByID(ctx, newMemberID)
	if err != nil {
		return nil, err
	}

	if err := s.store.AddMember(ctx, projectID, newMemberID); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	detail, err := s.store.GetProjectDetail(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project detail: %w", err)
	}

	s.hub.Publish(projectID, &core.Event{
		Kind:      core.EventMemberAdded,
		ProjectID: projectID,
		Project:   detail,
		Member:    member,
	})

	s.log.Info().
		Int64("project_id", projectID).
		Int64("member_id", newMemberID).
		Int64("user_id", userID).
		Msg("member added")
	return detail, nil
}

// RemoveMember removes a user from the project and broadcasts
// project-member-removed with the full updated project. The owner can remove
// anyone; a member can remove only themselves. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, userID, projectID, memberID int64) (*store.ProjectDetail, error) {
	project, err := s.store.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if memberID == project.OwnerID {
		return nil, ErrOwnerRemoval
	}
	if userID != project.OwnerID && userID != memberID {
		return nil, ErrNotOwner
	}
	if userID == memberID {
		if err := s.requireMember(ctx, projectID, userID); err != nil {
			return nil, err
		}
	}

	if err := s.store.RemoveMember(ctx, projectID, memberID); err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}

	detail, err := s.store.GetProjectDetail(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project detail: %w", err)
	}

	s.hub.Publish(projectID, &core.Event{
		Kind:      core.EventMemberRemoved,
		ProjectID: projectID,
		Project:   detail,
		MemberID:  memberID,
	})

	s.log.Info().
		Int64("project_id", projectID).
		Int64("member_id", memberID).
		Int64("user_id", userID).
		Msg("member removed")
	return detail, nil
}

func (s *Service) requireMember(ctx context.Context, projectID, userID int64) error {
	ok, err := s.store.IsMember(ctx, projectID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}
