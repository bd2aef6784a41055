package parsers

import (
	"strings"
	"testing"
)

const samplePresentationLinkbase = `<?xml version="1.0" encoding="utf-8"?>
<link:linkbase xmlns:link="http://www.xbrl.org/2003/linkbase" xmlns:xlink="http://www.w3.org/1999/xlink">
  <link:presentationLink xlink:role="http://www.example.com/role/CONSOLIDATEDSTATEMENTSOFOPERATIONS">
    <link:loc xlink:href="https://xbrl.fasb.org/us-gaap/2024/elts/us-gaap-2024.xsd#us-gaap_Revenues" xlink:label="loc_Revenues"/>
    <link:loc xlink:href="https://xbrl.fasb.org/us-gaap/2024/elts/us-gaap-2024.xsd#us-gaap_CostOfRevenue" xlink:label="loc_CostOfRevenue"/>
    <link:presentationArc xlink:from="loc_Revenues" xlink:to="loc_CostOfRevenue" preferredLabel="http://www.xbrl.org/2009/role/negatedTerseLabel"/>
  </link:presentationLink>
  <link:presentationLink xlink:role="http://www.example.com/role/CONSOLIDATEDBALANCESHEETS">
    <link:loc xlink:href="https://xbrl.fasb.org/us-gaap/2024/elts/us-gaap-2024.xsd#us-gaap_Revenues" xlink:label="loc_Revenues"/>
    <link:loc xlink:href="https://xbrl.fasb.org/us-gaap/2024/elts/us-gaap-2024.xsd#us-gaap_Assets" xlink:label="loc_Assets"/>
    <link:presentationArc xlink:from="loc_Revenues" xlink:to="loc_Assets" preferredLabel="http://www.xbrl.org/2003/role/terseLabel"/>
  </link:presentationLink>
</link:linkbase>`

func TestParseLinkbase(t *testing.T) {
	lb, err := NewLinkbaseParser(nil).Parse(strings.NewReader(samplePresentationLinkbase), "aapl-20240630_pre.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lb.ConceptRoles) != 3 {
		t.Errorf("expected 3 concepts with roles, got %d", len(lb.ConceptRoles))
	}

	revenueRoles := lb.ConceptRoles["us-gaap:Revenues"]
	if len(revenueRoles) != 2 {
		t.Fatalf("expected revenue under 2 roles, got %v", revenueRoles)
	}
	assetRoles := lb.ConceptRoles["us-gaap:Assets"]
	if len(assetRoles) != 1 || assetRoles[0] != "CONSOLIDATEDBALANCESHEETS" {
		t.Errorf("expected assets under the balance sheet role, got %v", assetRoles)
	}

	if !lb.Negated.Contains("us-gaap:CostOfRevenue") {
		t.Error("expected cost of revenue in the negated set")
	}
	if lb.Negated.Contains("us-gaap:Revenues") {
		t.Error("revenue should not be in the negated set")
	}
	if lb.Negated.Contains("us-gaap:Assets") {
		t.Error("plain terse label should not mark a concept negated")
	}
}

func TestConceptFromHref(t *testing.T) {
	tests := []struct {
		href     string
		expected string
	}{
		{"https://xbrl.fasb.org/us-gaap-2024.xsd#us-gaap_Revenues", "us-gaap:Revenues"},
		{"aapl-20240630.xsd#aapl_ProductsAndServicesMember", "aapl:ProductsAndServicesMember"},
		{"schema.xsd#PlainConcept", "PlainConcept"},
		{"no-fragment.xsd", ""},
		{"trailing.xsd#", ""},
	}

	for _, tt := range tests {
		if got := conceptFromHref(tt.href); got != tt.expected {
			t.Errorf("href %q: expected %q, got %q", tt.href, tt.expected, got)
		}
	}
}

func TestShortRole(t *testing.T) {
	tests := []struct {
		uri      string
		expected string
	}{
		{"http://www.example.com/role/CONSOLIDATEDSTATEMENTSOFOPERATIONS", "CONSOLIDATEDSTATEMENTSOFOPERATIONS"},
		{"http://www.example.com/role/Cover/", "Cover"},
		{"BareRole", "BareRole"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := shortRole(tt.uri); got != tt.expected {
			t.Errorf("uri %q: expected %q, got %q", tt.uri, tt.expected, got)
		}
	}
}
