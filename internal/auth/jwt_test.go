package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	t.Parallel()
	token, exp, err := Issue("stu-1", "stu1@campus.edu", RoleStudent, "campus-portal", "test-key", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Error("expiry not in the future")
	}

	claims, err := Parse(token, "test-key", "campus-portal")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "stu-1" || claims.Role != RoleStudent || claims.Email != "stu1@campus.edu" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejectsBadKeyAndIssuer(t *testing.T) {
	t.Parallel()
	token, _, err := Issue("f-1", "prof@campus.edu", RoleFaculty, "campus-portal", "test-key", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := Parse(token, "wrong-key", "campus-portal"); err == nil {
		t.Error("wrong key accepted")
	}
	if _, err := Parse(token, "test-key", "someone-else"); err == nil {
		t.Error("wrong issuer accepted")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	t.Parallel()
	token, _, err := Issue("f-1", "prof@campus.edu", RoleFaculty, "campus-portal", "test-key", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(token, "test-key", "campus-portal"); err == nil {
		t.Error("expired token accepted")
	}
}
