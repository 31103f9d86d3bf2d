package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"tripkey/internal/directory/models"
	"tripkey/internal/platform/config"
	"tripkey/internal/session"
	id "tripkey/pkg/domain"
	"tripkey/pkg/requestcontext"
)

// RegisterSteps registers all step definitions.
func RegisterSteps(sc *godog.ScenarioContext, tc *TestContext) {
	sc.Step(`^the tripkey server is running$`, tc.serverIsRunning)

	sc.Step(`^"([^"]*)" creates a trip named "([^"]*)"$`, tc.createsTrip)
	sc.Step(`^"([^"]*)" joins with the trip PIN$`, tc.joinsWithPIN)
	sc.Step(`^"([^"]*)" joins with the previous PIN$`, tc.joinsWithOldPIN)
	sc.Step(`^"([^"]*)" joins with PIN "([^"]*)"$`, tc.joinsWithGivenPIN)
	sc.Step(`^"([^"]*)" joins the trip by id with PIN "([^"]*)"$`, tc.joinsScoped)
	sc.Step(`^someone submits (\d+) wrong PINs$`, tc.submitsWrongPINs)

	sc.Step(`^"([^"]*)" validates their session$`, tc.validatesSession)
	sc.Step(`^"([^"]*)" lists the trip members$`, tc.listsMembers)
	sc.Step(`^"([^"]*)" rotates the trip PIN$`, tc.rotatesPIN)
	sc.Step(`^"([^"]*)" removes "([^"]*)"$`, tc.removes)
	sc.Step(`^a session is validated with token "([^"]*)"$`, tc.validatesWithRawToken)
	sc.Step(`^a session is validated without a token$`, tc.validatesWithoutToken)
	sc.Step(`^"([^"]*)" presents a forged token claiming role "([^"]*)"$`, tc.forgedRoleToken)
	sc.Step(`^a token is presented for an unknown trip$`, tc.tokenForUnknownTrip)
	sc.Step(`^a token is presented for an unknown member of the trip$`, tc.tokenForUnknownMember)
	sc.Step(`^a browser sends a preflight request to "([^"]*)"$`, tc.preflight)

	sc.Step(`^the response status should be (\d+)$`, tc.statusShouldBe)
	sc.Step(`^the error code should be "([^"]*)"$`, tc.errorCodeShouldBe)
	sc.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.fieldShouldEqual)
	sc.Step(`^the response should include a (\d+)-digit PIN$`, tc.responseHasPIN)
	sc.Step(`^the response should include a retry hint$`, tc.responseHasRetryHint)
	sc.Step(`^the response should list (\d+) members?$`, tc.responseListsMembers)
	sc.Step(`^the response body should be empty$`, tc.bodyShouldBeEmpty)
	sc.Step(`^the response header "([^"]*)" should contain "([^"]*)"$`, tc.headerShouldContain)
}

func (tc *TestContext) serverIsRunning(context.Context) error {
	if err := tc.Do(http.MethodGet, "/health/live", nil, ""); err != nil {
		return err
	}
	return tc.statusShouldBe(context.Background(), http.StatusOK)
}

func (tc *TestContext) createsTrip(_ context.Context, who, name string) error {
	err := tc.Do(http.MethodPost, "/api/trips", map[string]any{
		"name":        name,
		"startDate":   "2026-06-01",
		"endDate":     "2026-06-08",
		"timezone":    "Europe/Lisbon",
		"displayName": who,
	}, "")
	if err != nil {
		return err
	}
	if tc.Status() != http.StatusCreated {
		return fmt.Errorf("create trip: status %d: %s", tc.Status(), tc.LastResponseBody)
	}
	if tc.TripID, err = tc.StringField("trip.id"); err != nil {
		return err
	}
	if tc.PIN, err = tc.StringField("trip.pin"); err != nil {
		return err
	}
	tc.Creator = who
	return tc.remember(who)
}

func (tc *TestContext) joinsWithPIN(_ context.Context, who string) error {
	return tc.join(who, tc.PIN, "")
}

func (tc *TestContext) joinsWithOldPIN(_ context.Context, who string) error {
	return tc.join(who, tc.OldPIN, "")
}

func (tc *TestContext) joinsWithGivenPIN(_ context.Context, who, pin string) error {
	return tc.join(who, pin, "")
}

func (tc *TestContext) joinsScoped(_ context.Context, who, pin string) error {
	if pin == "<trip PIN>" {
		pin = tc.PIN
	}
	return tc.join(who, pin, tc.TripID)
}

func (tc *TestContext) join(who, pin, tripID string) error {
	body := map[string]any{"pin": pin, "displayName": who}
	if tripID != "" {
		body["tripId"] = tripID
	}
	if err := tc.Do(http.MethodPost, "/api/trips/join", body, ""); err != nil {
		return err
	}
	if tc.Status() == http.StatusOK {
		return tc.remember(who)
	}
	return nil
}

func (tc *TestContext) remember(who string) error {
	token, err := tc.StringField("token")
	if err != nil {
		return err
	}
	memberID, err := tc.StringField("member.id")
	if err != nil {
		return err
	}
	tc.Tokens[who] = token
	tc.Members[who] = memberID
	return nil
}

func (tc *TestContext) submitsWrongPINs(_ context.Context, n int) error {
	wrong := "000000"
	if tc.PIN == wrong {
		wrong = "000001"
	}
	for i := range n {
		if err := tc.join("Guesser "+strconv.Itoa(i), wrong, ""); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TestContext) validatesSession(_ context.Context, who string) error {
	return tc.Do(http.MethodGet, "/api/session", nil, tc.Tokens[who])
}

func (tc *TestContext) listsMembers(_ context.Context, who string) error {
	return tc.Do(http.MethodGet, "/api/trips/current/members", nil, tc.Tokens[who])
}

func (tc *TestContext) rotatesPIN(_ context.Context, who string) error {
	if err := tc.Do(http.MethodPost, "/api/trips/current/pin/rotate", nil, tc.Tokens[who]); err != nil {
		return err
	}
	if tc.Status() != http.StatusOK {
		return nil
	}
	pin, err := tc.StringField("pin")
	if err != nil {
		return err
	}
	tc.OldPIN, tc.PIN = tc.PIN, pin
	return nil
}

func (tc *TestContext) removes(_ context.Context, who, target string) error {
	memberID, ok := tc.Members[target]
	if !ok {
		return fmt.Errorf("unknown member %q", target)
	}
	return tc.Do(http.MethodDelete, "/api/trips/current/members/"+memberID, nil, tc.Tokens[who])
}

func (tc *TestContext) validatesWithRawToken(_ context.Context, token string) error {
	return tc.Do(http.MethodGet, "/api/session", nil, token)
}

func (tc *TestContext) validatesWithoutToken(context.Context) error {
	return tc.Do(http.MethodGet, "/api/session", nil, "")
}

// mint signs a token with the development key, as tokengen does.
func (tc *TestContext) mint(tripID id.TripID, memberID id.MemberID, role models.Role) (string, error) {
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	token, _, err := session.New(config.DevSigningKey, "tripkey", 0).Issue(ctx, tripID, memberID, role, "Forged")
	return token, err
}

func (tc *TestContext) forgedRoleToken(_ context.Context, who, role string) error {
	tripID, err := id.ParseTripID(tc.TripID)
	if err != nil {
		return err
	}
	memberID, err := id.ParseMemberID(tc.Members[who])
	if err != nil {
		return err
	}
	token, err := tc.mint(tripID, memberID, models.Role(role))
	if err != nil {
		return err
	}
	return tc.validatesWithRawToken(context.Background(), token)
}

func (tc *TestContext) tokenForUnknownTrip(context.Context) error {
	token, err := tc.mint(id.NewTripID(), id.NewMemberID(), models.RoleStandard)
	if err != nil {
		return err
	}
	return tc.validatesWithRawToken(context.Background(), token)
}

func (tc *TestContext) tokenForUnknownMember(context.Context) error {
	tripID, err := id.ParseTripID(tc.TripID)
	if err != nil {
		return err
	}
	token, err := tc.mint(tripID, id.NewMemberID(), models.RoleStandard)
	if err != nil {
		return err
	}
	return tc.validatesWithRawToken(context.Background(), token)
}

func (tc *TestContext) preflight(_ context.Context, path string) error {
	return tc.Preflight(path)
}

func (tc *TestContext) statusShouldBe(_ context.Context, expected int) error {
	if tc.Status() != expected {
		return fmt.Errorf("expected status %d but got %d: %s", expected, tc.Status(), tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) errorCodeShouldBe(_ context.Context, code string) error {
	return tc.fieldShouldEqual(context.Background(), "code", code)
}

func (tc *TestContext) fieldShouldEqual(_ context.Context, field, expected string) error {
	v, err := tc.Field(field)
	if err != nil {
		return err
	}
	if actual := fmt.Sprint(v); actual != expected {
		return fmt.Errorf("expected %s=%q but got %q", field, expected, actual)
	}
	return nil
}

func (tc *TestContext) responseHasPIN(_ context.Context, digits int) error {
	pin, err := tc.StringField("trip.pin")
	if err != nil {
		pin, err = tc.StringField("pin")
	}
	if err != nil {
		return err
	}
	if len(pin) != digits {
		return fmt.Errorf("expected %d-digit PIN, got %q", digits, pin)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN %q contains a non-digit", pin)
		}
	}
	return nil
}

func (tc *TestContext) responseHasRetryHint(context.Context) error {
	v, err := tc.Field("retryAfter")
	if err != nil {
		return err
	}
	if n, ok := v.(float64); !ok || n < 1 {
		return fmt.Errorf("retryAfter should be a positive number, got %v", v)
	}
	if tc.LastResponse.Header.Get("Retry-After") == "" {
		return fmt.Errorf("missing Retry-After header")
	}
	return nil
}

func (tc *TestContext) responseListsMembers(_ context.Context, n int) error {
	v, err := tc.Field("members")
	if err != nil {
		return err
	}
	members, ok := v.([]any)
	if !ok || len(members) != n {
		return fmt.Errorf("expected %d members, got %v", n, v)
	}
	return nil
}

func (tc *TestContext) bodyShouldBeEmpty(context.Context) error {
	if len(tc.LastResponseBody) != 0 {
		return fmt.Errorf("expected empty body, got %q", tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) headerShouldContain(_ context.Context, header, want string) error {
	got := tc.LastResponse.Header.Get(header)
	if !strings.Contains(got, want) {
		return fmt.Errorf("header %s=%q does not contain %q", header, got, want)
	}
	return nil
}
