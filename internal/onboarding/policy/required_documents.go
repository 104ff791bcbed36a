// Package policy holds pure evaluation rules over document verifications.
// No I/O, no side effects; callers decide what to do with the result.
package policy

import "onboarding-gateway/internal/onboarding"

var physicalDocuments = []onboarding.DocumentType{
	onboarding.DocumentIDCard,
	onboarding.DocumentPassport,
	onboarding.DocumentDrivingLicense,
}

// RequiredDocumentsPresent evaluates whether all required document types are
// present and accepted. The rule chain:
//  1. Exactly two distinct physical document types among accepted documents.
//  2. A primary document: both sides of an ID card, or a passport.
//  3. A secondary document: a driving licence, a passport, or both sides of an
//     ID card. The same documents may satisfy both primary and secondary.
func RequiredDocumentsPresent(documents []onboarding.DocumentVerification) bool {
	accepted := make([]onboarding.DocumentVerification, 0, len(documents))
	for _, d := range documents {
		if d.Status == onboarding.DocumentAccepted {
			accepted = append(accepted, d)
		}
	}

	return hasTwoDistinctDocuments(accepted) &&
		hasPrimaryDocument(accepted) &&
		hasSecondaryDocument(accepted)
}

func hasTwoDistinctDocuments(documents []onboarding.DocumentVerification) bool {
	distinct := make(map[onboarding.DocumentType]bool)
	for _, d := range documents {
		for _, t := range physicalDocuments {
			if d.Type == t {
				distinct[d.Type] = true
			}
		}
	}
	return len(distinct) == 2
}

func hasPrimaryDocument(documents []onboarding.DocumentVerification) bool {
	return hasBothSidesOfIDCard(documents) || hasPassport(documents)
}

func hasSecondaryDocument(documents []onboarding.DocumentVerification) bool {
	return hasDrivingLicence(documents) || hasPassport(documents) || hasBothSidesOfIDCard(documents)
}

func hasBothSidesOfIDCard(documents []onboarding.DocumentVerification) bool {
	sides := make(map[onboarding.CardSide]bool)
	for _, d := range documents {
		if d.Type == onboarding.DocumentIDCard {
			sides[d.Side] = true
		}
	}
	return len(sides) == 2
}

func hasPassport(documents []onboarding.DocumentVerification) bool {
	for _, d := range documents {
		if d.Type == onboarding.DocumentPassport {
			return true
		}
	}
	return false
}

func hasDrivingLicence(documents []onboarding.DocumentVerification) bool {
	for _, d := range documents {
		if d.Type == onboarding.DocumentDrivingLicense {
			return true
		}
	}
	return false
}
