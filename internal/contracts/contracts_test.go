package contracts

import (
	"errors"
	"testing"
)

func TestParseCalendarPath(t *testing.T) {
	path, err := ParseCalendarPath("cal-1/inst-2")
	if err != nil {
		t.Fatalf("ParseCalendarPath returned error: %v", err)
	}
	if path.CalendarID != "cal-1" || path.InstanceID != "inst-2" {
		t.Fatalf("unexpected path %+v", path)
	}
	if path.String() != "cal-1/inst-2" {
		t.Fatalf("round trip broke: %q", path.String())
	}
}

func TestParseCalendarPath_Malformed(t *testing.T) {
	for _, raw := range []string{"", "cal-1", "cal-1/", "/inst-2", "/"} {
		if _, err := ParseCalendarPath(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseCalendarPath(%q) = %v, want ErrInvalidArgument", raw, err)
		}
	}
}

func TestAccessString(t *testing.T) {
	cases := map[Access]string{
		AccessOwner:          "owner",
		AccessSharedOwner:    "shared-owner",
		AccessRead:           "read",
		AccessReadWrite:      "read-write",
		AccessAdministration: "administration",
		AccessFreeBusy:       "free-busy",
		AccessNoAccess:       "no-access",
		Access(0):            "unknown",
	}
	for access, want := range cases {
		if got := access.String(); got != want {
			t.Errorf("Access(%d).String() = %q, want %q", access, got, want)
		}
	}
}
