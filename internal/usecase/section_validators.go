package usecase

import (
	"errors"
	"fmt"
	"strings"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"
	"softhire-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
)

// SectionValidator checks a decoded section. Cross-field rules run first and
// report the first violated rule; struct tag rules run afterwards.
// It has no side effects and never touches storage.
type SectionValidator struct {
	validate *validator.Validate
}

func NewSectionValidator(v *validator.Validate) *SectionValidator {
	if v == nil {
		v = validation.New()
	}
	return &SectionValidator{validate: v}
}

func (sv *SectionValidator) Validate(section domain.Section) error {
	if section == nil {
		return apperror.Validation("Section payload is required.")
	}
	if msg := crossFieldViolation(section); msg != "" {
		return apperror.Validation(msg)
	}
	if err := sv.validate.Struct(section); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return apperror.Internal(err)
		}
		return apperror.Validation(validation.FirstMessage(err))
	}
	return nil
}

func crossFieldViolation(section domain.Section) string {
	switch s := section.(type) {
	case *domain.GettingStarted:
		return checkGettingStarted(s)
	case *domain.AboutYourCompany:
		return checkAboutYourCompany(s)
	case *domain.CompanyStructure:
		return checkCompanyStructure(s)
	case *domain.ActivityAndNeeds:
		return checkActivityAndNeeds(s)
	case *domain.AuthorisingOfficer:
		return checkPersonDetails(&s.PersonDetails)
	case *domain.SystemAccess:
		return checkSystemAccess(s)
	case *domain.SupportingDocuments:
		return ""
	case *domain.OrganizationSize:
		return checkOrganizationSize(s)
	case *domain.Declarations:
		return checkDeclarations(s)
	}
	return fmt.Sprintf("Unsupported section %q.", section.Kind())
}

func checkGettingStarted(s *domain.GettingStarted) string {
	hasLicence := isTrue(s.HasSponsorLicense.Value)
	if hasLicence && blank(s.HasSponsorLicense.LicenseNumber) {
		return "Sponsor Licence number is required when license is true."
	}
	if hasLicence && isTrue(s.HadSponsorLicenseBefore.Value) {
		return "You cannot currently hold a sponsor license *and* have previously held one."
	}

	if isTrue(s.RejectedBefore.Value) && blank(s.RejectedBefore.Reason) {
		return "Please provide a reason for rejection."
	}
	if isFalse(s.RejectedBefore.Value) && !blank(s.RejectedBefore.Reason) {
		return "Reason should not be provided if not rejected before."
	}

	if isTrue(s.IsRecruitmentAgency.Value) {
		if s.IsRecruitmentAgency.ContractsOutToOthers == nil {
			return "Please specify whether workers are contracted out."
		}
	} else if s.IsRecruitmentAgency.ContractsOutToOthers != nil {
		return "contractsOutToOthers should not be set if not a recruitment agency."
	}
	return ""
}

func checkAboutYourCompany(s *domain.AboutYourCompany) string {
	if isTrue(s.HasPayeReference) {
		if len(s.PayeReferences) == 0 {
			return "At least one PAYE reference is required."
		}
	} else if blank(s.PayeExemptReason) {
		return "PAYE exempt reason is required."
	}

	if s.HasOtherLocations && len(s.OtherWorkLocations) == 0 {
		return "Other work locations must be provided."
	}

	if !s.SameAsRegistered && s.TradingAddress == nil {
		return "Trading address is required if it's not the same as registered."
	}
	return ""
}

func checkCompanyStructure(s *domain.CompanyStructure) string {
	if s.OperatesInCareSector && s.OperatesInDomiciliaryCare == nil {
		return "Please specify if you operate in the domiciliary care sector."
	}
	if s.TradedUnderOtherNames && len(s.PreviousTradingNames) == 0 {
		return "Please provide previous trading name(s)."
	}
	if s.VatRegistered && blank(s.VatNumber) {
		return "VAT registration number is required."
	}
	if s.RequiresGoverningBodyRegistration {
		gb := s.GoverningBodyDetails
		if gb == nil || blank(gb.Name) || blank(gb.RegistrationNumber) {
			return "Governing body name and registration number are required."
		}
	}
	return ""
}

func checkActivityAndNeeds(s *domain.ActivityAndNeeds) string {
	if s.EmploysMigrantWorkers && s.MigrantWorkerCount == nil {
		return "Please specify how many migrant workers you employ."
	}
	if s.HasIdentifiedCandidates && len(s.ProspectiveEmployees) == 0 {
		return "Please provide at least one prospective employee."
	}
	if len(s.ReasonsForSponsorship) == 0 {
		return "Please specify at least one reason for sponsorship."
	}

	if !s.HasHRPlatform {
		return ""
	}
	if blank(s.HRPlatformName) {
		return "Please specify the HR platform name."
	}
	if s.HRPlatformCoversAll == nil {
		return "Please specify whether the HR platform covers Payslip, Rotas, Annual & Sick Leave."
	}
	if !*s.HRPlatformCoversAll {
		return ""
	}
	if s.WantsBorderlessApp == nil {
		return "Please specify if you want to use the Borderless compliance app."
	}
	if !*s.WantsBorderlessApp && blank(s.CompliancePlan) {
		return "Please describe how you plan to maintain Home Office compliance."
	}
	if *s.WantsBorderlessApp && !blank(s.CompliancePlan) {
		return "Compliance plan should not be provided when using Borderless compliance app."
	}
	return ""
}

func checkPersonDetails(p *domain.PersonDetails) string {
	switch {
	case isTrue(p.HasNationalInsuranceNumber):
		if blank(p.NationalInsuranceNumber) {
			return "National Insurance Number is required."
		}
		if !blank(p.NIExemptReason) {
			return "Exempt reason should not be provided with a National Insurance Number."
		}
	case isFalse(p.HasNationalInsuranceNumber):
		if blank(p.NIExemptReason) {
			return "Exempt reason is required if no NI Number."
		}
		if !blank(p.NationalInsuranceNumber) {
			return "National Insurance Number should not be provided when exempt."
		}
	}

	if isTrue(p.HasConvictions) && blank(p.ConvictionDetails) {
		return "Please provide conviction details."
	}

	if isFalse(p.IsSettledWorker) {
		var missing []string
		if blank(p.ImmigrationStatus) {
			missing = append(missing, "immigration status")
		}
		if blank(p.PassportNumber) {
			missing = append(missing, "passport number")
		}
		if blank(p.HomeOfficeReference) {
			missing = append(missing, "Home Office reference")
		}
		if blank(p.PermissionExpiryDate) {
			missing = append(missing, "permission expiry date")
		}
		if len(missing) > 0 {
			return "Workers who are not settled must provide: " + strings.Join(missing, ", ") + "."
		}
	}
	return ""
}

func checkSystemAccess(s *domain.SystemAccess) string {
	if isTrue(s.Level1Access) {
		if s.Level1User == nil {
			return "Level 1 user details are required when level 1 access is requested."
		}
		return checkPersonDetails(&s.Level1User.PersonDetails)
	}
	if s.Level1User != nil {
		return "Level 1 user details should not be provided without level 1 access."
	}
	return ""
}

func checkOrganizationSize(s *domain.OrganizationSize) string {
	if s.TurnoverBelow15M == nil || s.AssetsBelow7_5M == nil || s.EmployeesBelow50 == nil {
		return "All fields must be boolean values."
	}
	return ""
}

func checkDeclarations(s *domain.Declarations) string {
	var missing []string
	if blank(s.ServiceType) {
		missing = append(missing, "serviceType")
	}
	if blank(s.CanMeetSponsorDuties) {
		missing = append(missing, "canMeetSponsorDuties")
	}
	if !s.AgreesToTerms {
		missing = append(missing, "agreesToTerms")
	}
	if len(missing) > 0 {
		return "Missing required fields: " + strings.Join(missing, ", ") + "."
	}
	return ""
}

func isTrue(b *bool) bool  { return b != nil && *b }
func isFalse(b *bool) bool { return b != nil && !*b }

func blank(s string) bool { return strings.TrimSpace(s) == "" }
