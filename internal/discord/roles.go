package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"gamingbot/internal/models"
)

const membersPageSize = 1000

// RoleDirectory resolves roles by name and manages role membership.
// Implements notify.RoleSource.
type RoleDirectory struct {
	session *discordgo.Session
}

func NewRoleDirectory(s *discordgo.Session) *RoleDirectory {
	return &RoleDirectory{session: s}
}

// RoleMembers returns the IDs of the non-bot members holding the named role
func (d *RoleDirectory) RoleMembers(ctx context.Context, guildID, role string) ([]string, error) {
	r, err := d.findRole(ctx, guildID, role)
	if err != nil {
		return nil, err
	}

	var ids []string
	after := ""
	for {
		page, err := d.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list guild members: %w", err)
		}
		ids = append(ids, membersWithRole(page, r.ID)...)
		if len(page) < membersPageSize {
			return ids, nil
		}
		last := page[len(page)-1]
		if last.User == nil {
			return ids, nil
		}
		after = last.User.ID
	}
}

// HasRole reports whether the member holds the named role
func (d *RoleDirectory) HasRole(ctx context.Context, guildID, memberID, role string) (bool, error) {
	r, err := d.findRole(ctx, guildID, role)
	if err != nil {
		return false, err
	}
	m, err := d.session.GuildMember(guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to get member %s: %w", memberID, err)
	}
	return hasRoleID(m, r.ID), nil
}

// SetMemberRole grants or revokes the named role
func (d *RoleDirectory) SetMemberRole(ctx context.Context, guildID, memberID, role string, on bool) error {
	r, err := d.findRole(ctx, guildID, role)
	if err != nil {
		return err
	}
	if on {
		err = d.session.GuildMemberRoleAdd(guildID, memberID, r.ID, discordgo.WithContext(ctx))
	} else {
		err = d.session.GuildMemberRoleRemove(guildID, memberID, r.ID, discordgo.WithContext(ctx))
	}
	if err != nil {
		return fmt.Errorf("failed to update role %s for %s: %w", role, memberID, err)
	}
	return nil
}

// EnsureRole creates the named role when the guild lacks it and reports whether it did
func (d *RoleDirectory) EnsureRole(ctx context.Context, guildID, name string) (bool, error) {
	_, err := d.findRole(ctx, guildID, name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrRoleNotFound) {
		return false, err
	}

	mentionable := true
	if _, err := d.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	}, discordgo.WithContext(ctx)); err != nil {
		return false, fmt.Errorf("failed to create role %s: %w", name, err)
	}
	return true, nil
}

func (d *RoleDirectory) findRole(ctx context.Context, guildID, name string) (*discordgo.Role, error) {
	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	if r := roleByName(roles, name); r != nil {
		return r, nil
	}
	return nil, models.ErrRoleNotFound
}

func roleByName(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, r := range roles {
		if r != nil && r.Name == name {
			return r
		}
	}
	return nil
}

func membersWithRole(members []*discordgo.Member, roleID string) []string {
	var ids []string
	for _, m := range members {
		if m == nil || m.User == nil || m.User.Bot {
			continue
		}
		if hasRoleID(m, roleID) {
			ids = append(ids, m.User.ID)
		}
	}
	return ids
}

func hasRoleID(m *discordgo.Member, roleID string) bool {
	if m == nil {
		return false
	}
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}
