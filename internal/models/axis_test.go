package models

import "testing"

func TestClassifyAxis(t *testing.T) {
	rules := DefaultAxisRules()

	tests := []struct {
		axis     string
		expected AxisCategory
	}{
		{"srt:ConsolidationItemsAxis", AxisConsolidation},
		{"us-gaap:StatementBusinessSegmentsAxis", AxisSegment},
		{"us-gaap:BusinessAcquisitionAxis", AxisSegment},
		{"srt:ProductOrServiceAxis", AxisProduct},
		{"us-gaap:ServiceTypeAxis", AxisProduct},
		{"srt:StatementGeographicalAxis", AxisGeo},
		{"srt:RegionAxis", AxisGeo},
		{"country:CountryAxis", AxisGeo},
		{"dei:LegalEntityAxis", AxisLegalEntity},
		{"custom:ReportingEntityAxis", AxisLegalEntity},
		{"us-gaap:FairValueByFairValueHierarchyLevelAxis", AxisUnassigned},
		{"", AxisUnassigned},
	}

	for _, tt := range tests {
		if got := ClassifyAxis(rules, tt.axis); got != tt.expected {
			t.Errorf("axis %q: expected %q, got %q", tt.axis, tt.expected, got)
		}
	}
}

func TestClassifyAxisRuleOrder(t *testing.T) {
	// A custom rule list where an early broad rule would swallow a later
	// specific one; first match must win.
	rules := []AxisRule{
		{Category: AxisGeo, Patterns: []string{"axis"}},
		{Category: AxisSegment, Patterns: []string{"segmentsaxis"}},
	}

	if got := ClassifyAxis(rules, "us-gaap:StatementBusinessSegmentsAxis"); got != AxisGeo {
		t.Errorf("expected first matching rule to win, got %q", got)
	}
}

func TestAssignAxes(t *testing.T) {
	rules := DefaultAxisRules()

	dims := []Dimension{
		{Axis: "us-gaap:StatementBusinessSegmentsAxis", Member: "aapl:IPhoneMember"},
		{Axis: "srt:StatementGeographicalAxis", Member: "aapl:AmericasMember"},
	}

	set := AssignAxes(rules, dims)
	if set.Segment != "aapl:IPhoneMember" {
		t.Errorf("expected segment member, got %q", set.Segment)
	}
	if set.Geo != "aapl:AmericasMember" {
		t.Errorf("expected geo member, got %q", set.Geo)
	}
	if set.Product != NoMember || set.Consolidation != NoMember {
		t.Error("expected untouched slots to hold the no-member sentinel")
	}
	if set.IsEmpty() {
		t.Error("set with members should not report empty")
	}
}

func TestAssignAxesJoinsSameBucket(t *testing.T) {
	rules := DefaultAxisRules()

	dims := []Dimension{
		{Axis: "us-gaap:StatementBusinessSegmentsAxis", Member: "aapl:IPhoneMember"},
		{Axis: "custom:OperatingSegmentsAxis", Member: "aapl:ServicesMember"},
	}

	set := AssignAxes(rules, dims)
	if set.Segment != "aapl:IPhoneMember|aapl:ServicesMember" {
		t.Errorf("expected joined members in dimension order, got %q", set.Segment)
	}
}

func TestAssignAxesKeepsUnmatchedAxisName(t *testing.T) {
	rules := DefaultAxisRules()

	dims := []Dimension{
		{Axis: "custom:WeirdAxis", Member: "custom:FooMember"},
		{Axis: "us-gaap:FairValueByFairValueHierarchyLevelAxis", Member: "us-gaap:FairValueInputsLevel1Member"},
	}

	set := AssignAxes(rules, dims)
	expected := "custom:weirdaxis=custom:FooMember" +
		"|us-gaap:fairvaluebyfairvaluehierarchylevelaxis=us-gaap:FairValueInputsLevel1Member"
	if set.Unassigned != expected {
		t.Errorf("expected axis=member text for unassigned dimensions, got %q", set.Unassigned)
	}
}

func TestAxisSetValuesOrder(t *testing.T) {
	set := EmptyAxisSet()
	set.Product = "aapl:MacMember"

	values := set.Values()
	if len(values) != len(AxisCategories) {
		t.Fatalf("expected %d values, got %d", len(AxisCategories), len(values))
	}
	if values[2] != "aapl:MacMember" {
		t.Errorf("expected product member in third slot, got %q", values[2])
	}

	if !EmptyAxisSet().IsEmpty() {
		t.Error("empty set should report empty")
	}
}
