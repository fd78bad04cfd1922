package fingerprint

import "testing"

func TestCanonicalIsStable(t *testing.T) {
	in := Inputs{ResourceType: "Patient", QueryString: "active=true", PartitionKey: "tenant-a"}
	first := Canonical(in)
	second := Canonical(in)
	if first != second {
		t.Fatalf("canonical form not stable: %q vs %q", first, second)
	}
	if first != "tenant-a|Patient?active=true" {
		t.Fatalf("unexpected canonical form %q", first)
	}
}

func TestCanonicalDistinguishesPartitions(t *testing.T) {
	a := Canonical(Inputs{ResourceType: "Patient", QueryString: "active=true", PartitionKey: "tenant-a"})
	b := Canonical(Inputs{ResourceType: "Patient", QueryString: "active=true", PartitionKey: "tenant-b"})
	if a == b {
		t.Fatal("different partitions produced the same fingerprint")
	}
}

func TestCanonicalDistinguishesResourceTypes(t *testing.T) {
	a := Canonical(Inputs{ResourceType: "Patient", QueryString: "active=true"})
	b := Canonical(Inputs{ResourceType: "Observation", QueryString: "active=true"})
	if a == b {
		t.Fatal("different resource types produced the same fingerprint")
	}
}

func TestHashMatchesCanonical(t *testing.T) {
	in := Inputs{ResourceType: "Patient", QueryString: "name=smith&active=true"}
	canonical := Canonical(in)
	if Hash(canonical) != Hash(Canonical(in)) {
		t.Fatal("hash not deterministic for identical canonical strings")
	}
	other := Canonical(Inputs{ResourceType: "Patient", QueryString: "name=jones"})
	if Hash(canonical) == Hash(other) {
		t.Fatalf("expected distinct hashes for %q and %q", canonical, other)
	}
}
