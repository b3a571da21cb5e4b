// Package validator applies the fixed per-row and cross-row rules of §4.4 to
// a normalized dataset, producing the canonical model.UserRow set the rest
// of the pipeline consumes.
package validator

import (
	"regexp"
	"strings"

	"useruploadagent/pkg/model"
	"useruploadagent/pkg/teamsplit"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Report is the Validator's output (§4.4: "{total, valid, invalid,
// error_histogram, rows:[...]}").
type Report struct {
	Total             int
	Valid             int
	Invalid           int
	ErrorHistogram    map[string]int
	Rows              []model.UserRow
	TeamSeparator     teamsplit.Separator
	TeamSplitOccurred bool
}

// Validate runs the fixed-order per-row rules, the cross-row duplicate-email
// check, and team separator detection/splitting (§4.4, §4.5) over a
// canonically-keyed dataset. canonicalRows maps canonical field name to raw
// cell value; rowNumbers is the 1-based source row number for each entry,
// same length and order as canonicalRows.
func Validate(canonicalRows []map[string]string, rowNumbers []int) Report {
	teamCells := make([]string, len(canonicalRows))
	for i, row := range canonicalRows {
		teamCells[i] = row["teams"]
	}
	splitTeams, sep, occurred := teamsplit.Split(teamCells)

	rows := make([]model.UserRow, len(canonicalRows))
	emailRowIndexes := make(map[string][]int) // case-folded email -> row indexes

	for i, row := range canonicalRows {
		rowNum := 0
		if i < len(rowNumbers) {
			rowNum = rowNumbers[i]
		}
		r := validateRow(row, splitTeams[i], rowNum)
		rows[i] = r
		if r.Email != "" {
			key := strings.ToLower(r.Email)
			emailRowIndexes[key] = append(emailRowIndexes[key], i)
		}
	}

	// Cross-row: duplicate emails invalidate every row sharing them (§4.4).
	for _, indexes := range emailRowIndexes {
		if len(indexes) < 2 {
			continue
		}
		for _, idx := range indexes {
			rows[idx].FieldErrors = append(rows[idx].FieldErrors, model.FieldError{
				Field: "email",
				Error: "duplicate email within dataset",
			})
		}
	}

	histogram := make(map[string]int)
	valid := 0
	for _, r := range rows {
		if r.Valid() {
			valid++
			continue
		}
		for _, fe := range r.FieldErrors {
			histogram[fe.Error]++
		}
	}

	return Report{
		Total:             len(rows),
		Valid:             valid,
		Invalid:           len(rows) - valid,
		ErrorHistogram:    histogram,
		Rows:              rows,
		TeamSeparator:     sep,
		TeamSplitOccurred: occurred,
	}
}

// validateRow applies the fixed field order from §4.4. The order of
// FieldErrors appended matters for deterministic messages; each rule runs
// regardless of earlier failures so every problem on a row is reported.
func validateRow(row map[string]string, teams []string, rowNumber int) model.UserRow {
	var errs []model.FieldError

	email := strings.TrimSpace(row["email"])
	if email == "" {
		errs = append(errs, model.FieldError{Field: "email", Error: "email is required"})
	} else if !emailPattern.MatchString(email) {
		errs = append(errs, model.FieldError{Field: "email", Error: "email is not well-formed"})
	}

	firstName := strings.TrimSpace(row["first name"])
	if firstName == "" {
		errs = append(errs, model.FieldError{Field: "first name", Error: "first name is required"})
	}

	lastName := strings.TrimSpace(row["last name"])
	if lastName == "" {
		errs = append(errs, model.FieldError{Field: "last name", Error: "last name is required"})
	}

	jobTitle := strings.TrimSpace(row["job title"])

	mobileNumber := strings.TrimSpace(row["mobile number"])
	if mobileNumber == "" {
		mobileNumber = "0"
	}

	if len(teams) == 0 {
		errs = append(errs, model.FieldError{Field: "teams", Error: "at least one team is required"})
	}

	userRole := model.UserRole(strings.ToUpper(strings.TrimSpace(row["user role"])))
	if !model.ValidRoles[userRole] {
		errs = append(errs, model.FieldError{Field: "user role", Error: "user role is not a recognized role"})
	}

	return model.UserRow{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		JobTitle:     jobTitle,
		MobileNumber: mobileNumber,
		Teams:        teams,
		UserRole:     userRole,
		RowNumber:    rowNumber,
		FieldErrors:  errs,
	}
}
