package domain

import (
	"context"
	"fmt"
	"strings"
)

// MemberRole is the role of a user inside a workspace.
type MemberRole string

const (
	RoleAdmin  MemberRole = "ADMIN"
	RoleMember MemberRole = "MEMBER"
)

func (r MemberRole) Valid() bool { return r == RoleAdmin || r == RoleMember }

// Member links a user to a workspace.
type Member struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	UserID      string     `json:"userId"`
	Role        MemberRole `json:"role"`
}

// authorize returns the caller's membership in workspaceID or ErrUnauthorized.
func authorize(ctx context.Context, st MemberStorage, workspaceID, userID string) (*Member, error) {
	m, err := st.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: user %s is not a member of workspace %s", ErrUnauthorized, userID, workspaceID)
	}
	return m, nil
}

// MemberService lists and administers workspace members.
type MemberService struct{ st MemberStorage }

func NewMemberService(st MemberStorage) MemberService { return MemberService{st: st} }

// List returns the members of workspaceID. The caller must be one of them.
func (s MemberService) List(ctx context.Context, userID, workspaceID string) ([]Member, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceId is required", ErrInvalidInput)
	}
	if _, err := authorize(ctx, s.st, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.st.ListMembers(ctx, workspaceID)
}

// Remove deletes a membership. Admins may remove anyone, other members only
// themselves. The last member of a workspace cannot be removed.
func (s MemberService) Remove(ctx context.Context, userID, memberID string) (Member, error) {
	target, members, err := s.loadForChange(ctx, userID, memberID, func(caller, target *Member) bool {
		return caller.ID == target.ID || caller.Role == RoleAdmin
	})
	if err != nil {
		return Member{}, err
	}
	if len(members) <= 1 {
		return Member{}, fmt.Errorf("%w: workspace %s", ErrLastMember, target.WorkspaceID)
	}
	if err := s.st.DeleteMember(ctx, *target); err != nil {
		return Member{}, err
	}
	return *target, nil
}

// UpdateRole changes the role of a member. Only admins may do so, and not in
// a workspace that has a single member.
func (s MemberService) UpdateRole(ctx context.Context, userID, memberID string, role MemberRole) (Member, error) {
	if !role.Valid() {
		return Member{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	target, members, err := s.loadForChange(ctx, userID, memberID, func(caller, _ *Member) bool {
		return caller.Role == RoleAdmin
	})
	if err != nil {
		return Member{}, err
	}
	if len(members) <= 1 {
		return Member{}, fmt.Errorf("%w: workspace %s", ErrLastMember, target.WorkspaceID)
	}
	target.Role = role
	if err := s.st.UpsertMember(ctx, *target); err != nil {
		return Member{}, err
	}
	return *target, nil
}

// loadForChange resolves the target membership, checks the caller against
// allowed and returns the members of the target's workspace.
func (s MemberService) loadForChange(ctx context.Context, userID, memberID string, allowed func(caller, target *Member) bool) (*Member, []Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	target, err := s.st.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	if target == nil {
		return nil, nil, fmt.Errorf("%w: member %s", ErrNotFound, memberID)
	}
	caller, err := authorize(ctx, s.st, target.WorkspaceID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !allowed(caller, target) {
		return nil, nil, fmt.Errorf("%w: user %s may not change member %s", ErrUnauthorized, userID, memberID)
	}
	members, err := s.st.ListMembers(ctx, target.WorkspaceID)
	if err != nil {
		return nil, nil, err
	}
	return target, members, nil
}
