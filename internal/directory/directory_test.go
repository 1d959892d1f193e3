package directory

import "testing"

func TestLoadFixtures(t *testing.T) {
	d, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Experts("")) == 0 {
		t.Error("no experts loaded")
	}
	if len(d.Schemes("")) == 0 {
		t.Error("no schemes loaded")
	}
}

func TestExpertsFilterByState(t *testing.T) {
	d, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := d.Experts("karnataka")
	if len(got) == 0 {
		t.Fatal("no experts for karnataka (case-insensitive match expected)")
	}
	for _, e := range got {
		if e.State != "Karnataka" {
			t.Errorf("filter leaked %s expert: %s", e.State, e.Name)
		}
	}

	if got := d.Experts("Atlantis"); len(got) != 0 {
		t.Errorf("experts for unknown state: %v", got)
	}
}

func TestSchemesFilterByCategory(t *testing.T) {
	d, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := d.Schemes("irrigation")
	if len(got) != 1 || got[0].Name != "PMKSY - Per Drop More Crop" {
		t.Errorf("irrigation schemes = %v", got)
	}
}
