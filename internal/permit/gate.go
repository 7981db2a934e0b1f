package permit

// Reason classifies why a lifecycle transition is not allowed yet.
type Reason string

const (
	ReasonNoDocuments         Reason = "no_documents"
	ReasonMissingDocuments    Reason = "missing_documents"
	ReasonUnverifiedDocuments Reason = "unverified_documents"
	ReasonNotBuilding         Reason = "not_building"
	ReasonNotReadyForBilling  Reason = "not_ready_for_billing"
)

// Eligibility is the outcome of evaluating a package's documents against its
// requirement checklist. MissingCategories lists mandatory categories with no
// uploaded document at all; UnverifiedCategories lists mandatory categories
// that have uploads but no verified copy. UnverifiedCount is the number of
// documents still awaiting verification among those that block the gate.
type Eligibility struct {
	Eligible             bool
	Reason               Reason
	MissingCategories    []string
	UnverifiedCategories []string
	UnverifiedCount      int
}

// EvaluateBillingReadiness decides whether a package's document set satisfies
// its requirement checklist. It is a pure function of its inputs and touches
// no storage.
//
// A package qualifies when it has at least one document and every mandatory
// requirement category holds at least one verified document. Duplicate
// uploads in a category do not each need verification; one verified
// representative per category suffices, and documents outside any mandatory
// category never block. When the checklist is empty the gate falls back to
// requiring every uploaded document to be verified.
func EvaluateBillingReadiness(docs []*Document, reqs []*Requirement) Eligibility {
	if len(docs) == 0 {
		return Eligibility{Reason: ReasonNoDocuments}
	}

	if len(reqs) == 0 {
		unverified := 0
		for _, d := range docs {
			if !d.VerifiedComplete {
				unverified++
			}
		}
		if unverified > 0 {
			return Eligibility{Reason: ReasonUnverifiedDocuments, UnverifiedCount: unverified}
		}
		return Eligibility{Eligible: true}
	}

	present := make(map[string]int)
	verified := make(map[string]int)
	for _, d := range docs {
		present[d.Category]++
		if d.VerifiedComplete {
			verified[d.Category]++
		}
	}

	var elig Eligibility
	for _, r := range reqs {
		if !r.Mandatory {
			continue
		}
		switch {
		case present[r.Category] == 0:
			elig.MissingCategories = append(elig.MissingCategories, r.Category)
		case verified[r.Category] == 0:
			elig.UnverifiedCategories = append(elig.UnverifiedCategories, r.Category)
			elig.UnverifiedCount += present[r.Category]
		}
	}

	switch {
	case len(elig.MissingCategories) > 0:
		elig.Reason = ReasonMissingDocuments
	case len(elig.UnverifiedCategories) > 0:
		elig.Reason = ReasonUnverifiedDocuments
	default:
		elig.Eligible = true
	}
	return elig
}

// CanMarkReadyForBilling is the boolean form of EvaluateBillingReadiness,
// used where only the display flag is needed.
func CanMarkReadyForBilling(docs []*Document, reqs []*Requirement) bool {
	return EvaluateBillingReadiness(docs, reqs).Eligible
}
