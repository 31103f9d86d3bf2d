// Package main provides a CLI tool for minting and inspecting tripkey session
// tokens. Tokens use the dev signing key unless -key is given and will NOT
// work against a production deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"tripkey/internal/directory/models"
	"tripkey/internal/platform/config"
	"tripkey/internal/session"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/requestcontext"
)

const defaultIssuer = "tripkey"

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Claims    *session.Claims   `json:"claims"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "session":
		os.Exit(runSession(os.Args[2:]))
	case "inspect":
		os.Exit(runInspect(os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSession(args []string) int {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	tripID := fs.String("trip-id", "", "Trip ID (UUID). Generated if empty.")
	memberID := fs.String("member-id", "", "Member ID (UUID). Generated if empty.")
	role := fs.String("role", string(models.RoleStandard), "Role: elevated or standard")
	name := fs.String("name", "Dev User", "Display name")
	ttl := fs.Duration("ttl", session.DefaultTTL, "Token lifetime")
	key := fs.String("key", config.DevSigningKey, "Signing key")
	issuer := fs.String("issuer", defaultIssuer, "Token issuer")
	asJSON := fs.Bool("json", false, "Output as JSON")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError

	trip, err := parseOrNewTrip(*tripID)
	if err != nil {
		return fail(err)
	}
	member, err := parseOrNewMember(*memberID)
	if err != nil {
		return fail(err)
	}
	parsedRole, err := models.ParseRole(*role)
	if err != nil {
		return fail(err)
	}

	svc := session.New(*key, *issuer, *ttl)
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	token, claims, err := svc.Issue(ctx, trip, member, parsedRole, *name)
	if err != nil {
		return fail(err)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			ExpiresAt: claims.ExpiresAt,
			Claims:    claims,
			Usage: map[string]string{
				"header": "Authorization: Bearer " + token,
				"curl":   fmt.Sprintf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/session", token),
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fail(err)
		}
		return 0
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\ntrip=%s member=%s role=%s expires=%s\n",
		claims.TripID, claims.MemberID, claims.Role, claims.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(os.Stderr, "note: the server still checks the member against live trip state")
	return 0
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	key := fs.String("key", config.DevSigningKey, "Signing key")
	issuer := fs.String("issuer", defaultIssuer, "Token issuer")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tokengen inspect [-key K] <token>")
		return 1
	}

	claims, err := session.New(*key, *issuer, 0).Verify(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", dErrors.ReasonOf(err), err)
		return 2
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(claims); err != nil {
		return fail(err)
	}
	return 0
}

func parseOrNewTrip(s string) (id.TripID, error) {
	if s == "" {
		return id.NewTripID(), nil
	}
	return id.ParseTripID(s)
}

func parseOrNewMember(s string) (id.MemberID, error) {
	if s == "" {
		return id.NewMemberID(), nil
	}
	return id.ParseMemberID(s)
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `tokengen mints and inspects tripkey session tokens for local development.

Usage:
  tokengen session [-trip-id ID] [-member-id ID] [-role elevated|standard] [-name NAME] [-ttl 720h] [-json]
  tokengen inspect [-key KEY] <token>

Tokens are signed with the dev key by default. A minted token is only
accepted if the trip and member exist with a matching role.`)
}
