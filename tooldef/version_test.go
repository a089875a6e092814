package tooldef

import "testing"

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("v1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if v.Major != 1 || v.Minor != 2 || v.Patch != 3 {
		t.Fatalf("unexpected parse: %s", v)
	}

	if _, err := ParseVersion("not a version"); err == nil {
		t.Fatal("expected error for unparseable version")
	}
}

func TestSameVersion_Structural(t *testing.T) {
	if !SameVersion("1.0", "1.0.0") {
		t.Fatal("expected 1.0 to equal 1.0.0")
	}
	if !SameVersion("v1.2.3", "1.2.3") {
		t.Fatal("expected v-prefixed version to equal bare version")
	}
	if SameVersion("1.0.0", "1.0.1") {
		t.Fatal("expected patch bump to differ")
	}
}

func TestSameVersion_StringFallback(t *testing.T) {
	if !SameVersion("beta build", "beta build") {
		t.Fatal("expected identical unparseable versions to match")
	}
	if SameVersion("beta build", "1.0.0") {
		t.Fatal("expected unparseable vs semver to differ")
	}
}
