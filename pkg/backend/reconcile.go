package backend

import (
	"context"
	"fmt"
	"strings"

	"useruploadagent/pkg/model"
)

// Reconcile drives the §4.9 creation order against client: resolve role ids
// by case-insensitive role name, ensure each required team exists (creating
// missing ones in insertion order of first appearance), create users, then
// associate each created user to its teams. Per-row failures are collected
// and reported without aborting the batch.
func Reconcile(ctx context.Context, client Client, s Session, rows []model.UserRow) (createdUsers, existingUsers, createdTeams []string, failures []model.CreationFailure) {
	roles, err := client.ListRoles(ctx, s)
	if err != nil {
		return nil, nil, nil, []model.CreationFailure{{Reason: fmt.Sprintf("list roles: %v", err)}}
	}
	roleByName := make(map[string]string, len(roles))
	for _, r := range roles {
		roleByName[strings.ToLower(r.Name)] = r.ID
	}

	teamIDByName := make(map[string]string)
	var teamOrder []string
	seenTeam := make(map[string]bool)
	for _, row := range rows {
		if !row.Valid() {
			continue
		}
		for _, team := range row.Teams {
			if seenTeam[team] {
				continue
			}
			seenTeam[team] = true
			teamOrder = append(teamOrder, team)
		}
	}

	for _, name := range teamOrder {
		existing, found, err := client.FindTeam(ctx, s, name)
		if err != nil {
			failures = append(failures, model.CreationFailure{Team: name, Reason: fmt.Sprintf("find team: %v", err)})
			continue
		}
		if found {
			teamIDByName[name] = existing.ID
			continue
		}
		created, err := client.CreateTeam(ctx, s, NewTeamWithDefaultEscalation(name, nil))
		if err != nil {
			failures = append(failures, model.CreationFailure{Team: name, Reason: fmt.Sprintf("create team: %v", err)})
			continue
		}
		teamIDByName[name] = created.ID
		createdTeams = append(createdTeams, name)
	}

	for _, row := range rows {
		if !row.Valid() {
			continue
		}

		if existing, found, err := client.FindUser(ctx, s, row.Email); err != nil {
			failures = append(failures, model.CreationFailure{Email: row.Email, Reason: fmt.Sprintf("find user: %v", err)})
			continue
		} else if found {
			existingUsers = append(existingUsers, existing.Email)
			continue
		}

		roleID, ok := roleByName[strings.ToLower(string(row.UserRole))]
		if !ok {
			failures = append(failures, model.CreationFailure{Email: row.Email, Reason: fmt.Sprintf("unknown role %q on backend", row.UserRole)})
			continue
		}

		teamIDs := make([]string, 0, len(row.Teams))
		teamCreationFailed := false
		for _, team := range row.Teams {
			id, ok := teamIDByName[team]
			if !ok {
				failures = append(failures, model.CreationFailure{Email: row.Email, Team: team, Reason: "team was not created"})
				teamCreationFailed = true
				continue
			}
			teamIDs = append(teamIDs, id)
		}
		if teamCreationFailed {
			continue
		}

		newUser := NewUser{
			FirstName:     row.FirstName,
			LastName:      row.LastName,
			Email:         row.Email,
			Title:         row.JobTitle,
			MobileNumbers: []MobileNumber{{Number: row.MobileNumber, IsActive: true}},
			TeamIDs:       teamIDs,
			DefaultTeam:   firstOrEmpty(row.Teams),
			RoleID:        roleID,
		}

		created, err := client.CreateUser(ctx, s, newUser)
		if err != nil {
			failures = append(failures, model.CreationFailure{Email: row.Email, Reason: fmt.Sprintf("create user: %v", err)})
			continue
		}

		if err := client.AssociateUserToTeams(ctx, s, created.ID, teamIDs); err != nil {
			failures = append(failures, model.CreationFailure{Email: row.Email, Reason: fmt.Sprintf("associate to teams: %v", err)})
			continue
		}

		createdUsers = append(createdUsers, created.Email)
	}

	return createdUsers, existingUsers, createdTeams, failures
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
