package usecase

import (
	"encoding/json"
	"strings"

	"softhire-backend/internal/domain"
)

// switchRule names the answers that only exist while flag is not off.
type switchRule struct {
	flag       string
	off        bool
	dependents []string
}

func personSwitches(prefix string) []switchRule {
	p := func(field string) string { return prefix + field }
	return []switchRule{
		{p("hasNationalInsuranceNumber"), true, []string{p("niExemptReason")}},
		{p("hasNationalInsuranceNumber"), false, []string{p("nationalInsuranceNumber")}},
		{p("hasConvictions"), false, []string{p("convictionDetails")}},
		{p("isSettledWorker"), true, []string{p("immigrationStatus"), p("homeOfficeReference"), p("permissionExpiryDate")}},
	}
}

var switchRules = map[domain.SectionKind][]switchRule{
	domain.SectionGettingStarted: {
		{"hasSponsorLicense.value", false, []string{"hasSponsorLicense.licenseNumber"}},
		{"hadSponsorLicenseBefore.value", false, []string{"hadSponsorLicenseBefore.licenseNumber"}},
		{"rejectedBefore.value", false, []string{"rejectedBefore.reason"}},
		{"isRecruitmentAgency.value", false, []string{"isRecruitmentAgency.contractsOutToOthers"}},
	},
	domain.SectionAboutYourCompany: {
		{"hasPayeReference", true, []string{"payeExemptReason"}},
		{"hasPayeReference", false, []string{"payeReferences"}},
		{"hasOtherLocations", false, []string{"otherWorkLocations"}},
		{"sameAsRegistered", true, []string{"tradingAddress"}},
	},
	domain.SectionCompanyStructure: {
		{"operatesInCareSector", false, []string{"operatesInDomiciliaryCare"}},
		{"tradedUnderOtherNames", false, []string{"previousTradingNames"}},
		{"vatRegistered", false, []string{"vatNumber"}},
		{"requiresGoverningBodyRegistration", false, []string{"governingBodyDetails"}},
	},
	domain.SectionActivityAndNeeds: {
		{"employsMigrantWorkers", false, []string{"migrantWorkerCount"}},
		{"hasIdentifiedCandidates", false, []string{"prospectiveEmployees"}},
		{"hasHRPlatform", false, []string{"hrPlatformName", "hrPlatformCoversAll", "wantsBorderlessApp", "compliancePlan"}},
		{"hrPlatformCoversAll", false, []string{"wantsBorderlessApp", "compliancePlan"}},
		{"wantsBorderlessApp", true, []string{"compliancePlan"}},
	},
	domain.SectionAuthorisingOfficer: personSwitches(""),
	domain.SectionSystemAccess: append([]switchRule{
		{"level1Access", false, []string{"level1User"}},
	}, personSwitches("level1User.")...),
}

// clearSwitchedOff adds a null for every dependent answer the patch leaves
// out while it turns the controlling flag off, so the merge drops the saved
// value instead of keeping it. Answers sent in the patch are left alone and
// still go through validation.
func clearSwitchedOff(kind domain.SectionKind, patch json.RawMessage) (json.RawMessage, error) {
	rules := switchRules[kind]
	if len(rules) == 0 {
		return patch, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(patch, &doc); err != nil {
		return nil, err
	}

	changed := false
	for _, rule := range rules {
		v, ok := lookupPath(doc, rule.flag)
		if flag, isBool := v.(bool); !ok || !isBool || flag != rule.off {
			continue
		}
		for _, dep := range rule.dependents {
			if _, sent := lookupPath(doc, dep); sent {
				continue
			}
			if setNull(doc, dep) {
				changed = true
			}
		}
	}
	if !changed {
		return patch, nil
	}
	return json.Marshal(doc)
}

func lookupPath(doc map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setNull(doc map[string]interface{}, path string) bool {
	keys := strings.Split(path, ".")
	obj := doc
	for _, key := range keys[:len(keys)-1] {
		next, ok := obj[key].(map[string]interface{})
		if !ok {
			return false
		}
		obj = next
	}
	obj[keys[len(keys)-1]] = nil
	return true
}
