package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Section is implemented by the nine section payloads.
type Section interface {
	Kind() SectionKind
}

// NewSection returns an empty payload of the given kind.
func NewSection(kind SectionKind) (Section, error) {
	switch kind {
	case SectionGettingStarted:
		return &GettingStarted{}, nil
	case SectionAboutYourCompany:
		return &AboutYourCompany{}, nil
	case SectionCompanyStructure:
		return &CompanyStructure{}, nil
	case SectionActivityAndNeeds:
		return &ActivityAndNeeds{}, nil
	case SectionAuthorisingOfficer:
		return &AuthorisingOfficer{}, nil
	case SectionSystemAccess:
		return &SystemAccess{}, nil
	case SectionSupportingDocuments:
		return &SupportingDocuments{}, nil
	case SectionOrganizationSize:
		return &OrganizationSize{}, nil
	case SectionDeclarations:
		return &Declarations{}, nil
	}
	return nil, fmt.Errorf("unknown section kind %q", kind)
}

// DecodeSection strictly decodes raw into the payload type for kind.
func DecodeSection(kind SectionKind, raw json.RawMessage) (Section, error) {
	section, err := NewSection(kind)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(section); err != nil {
		return nil, err
	}
	return section, nil
}

// FileRef points at an uploaded object.
type FileRef struct {
	Name string `json:"name,omitempty" validate:"max=255"`
	URL  string `json:"url" validate:"required,url"`
	Key  string `json:"key,omitempty" validate:"max=512"`
}

type Address struct {
	Line1    string `json:"line1" validate:"required,max=200"`
	Line2    string `json:"line2,omitempty" validate:"max=200"`
	City     string `json:"city" validate:"required,max=100"`
	County   string `json:"county,omitempty" validate:"max=100"`
	Postcode string `json:"postcode" validate:"required,max=20"`
	Country  string `json:"country" validate:"required,max=100"`
}

// GettingStarted

type LicenceFlag struct {
	Value         *bool  `json:"value" validate:"required"`
	LicenseNumber string `json:"licenseNumber,omitempty" validate:"max=50"`
}

type RejectionFlag struct {
	Value  *bool  `json:"value" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=2000"`
}

type AgencyFlag struct {
	Value                *bool `json:"value" validate:"required"`
	ContractsOutToOthers *bool `json:"contractsOutToOthers,omitempty"`
}

type GettingStarted struct {
	HasSponsorLicense       LicenceFlag   `json:"hasSponsorLicense"`
	HadSponsorLicenseBefore LicenceFlag   `json:"hadSponsorLicenseBefore"`
	RejectedBefore          RejectionFlag `json:"rejectedBefore"`
	IsRecruitmentAgency     AgencyFlag    `json:"isRecruitmentAgency"`
	RegisteredInUK          *bool         `json:"registeredInUk,omitempty"`
}

func (*GettingStarted) Kind() SectionKind { return SectionGettingStarted }

// AboutYourCompany

type AboutYourCompany struct {
	CompanyName        string    `json:"companyName" validate:"required,max=200"`
	RegistrationNumber string    `json:"registrationNumber,omitempty" validate:"max=50"`
	Industry           string    `json:"industry,omitempty" validate:"max=200"`
	Website            string    `json:"website,omitempty" validate:"omitempty,url"`
	Telephone          string    `json:"telephone,omitempty" validate:"omitempty,uk_phone"`
	RegisteredAddress  *Address  `json:"registeredAddress" validate:"required"`
	SameAsRegistered   bool      `json:"sameAsRegistered"`
	TradingAddress     *Address  `json:"tradingAddress,omitempty"`
	HasPayeReference   *bool     `json:"hasPayeReference" validate:"required"`
	PayeReferences     []string  `json:"payeReferences,omitempty" validate:"dive,required,max=20"`
	PayeExemptReason   string    `json:"payeExemptReason,omitempty" validate:"max=2000"`
	HasOtherLocations  bool      `json:"hasOtherLocations"`
	OtherWorkLocations []Address `json:"otherWorkLocations,omitempty" validate:"dive"`
}

func (*AboutYourCompany) Kind() SectionKind { return SectionAboutYourCompany }

// CompanyStructure

type GoverningBody struct {
	Name               string `json:"name,omitempty" validate:"max=200"`
	RegistrationNumber string `json:"registrationNumber,omitempty" validate:"max=100"`
}

type CompanyStructure struct {
	StructureType                     string         `json:"structureType" validate:"required,max=100"`
	OperatesInCareSector              bool           `json:"operatesInCareSector"`
	OperatesInDomiciliaryCare         *bool          `json:"operatesInDomiciliaryCare,omitempty"`
	TradedUnderOtherNames             bool           `json:"tradedUnderOtherNames"`
	PreviousTradingNames              []string       `json:"previousTradingNames,omitempty" validate:"dive,required,max=200"`
	VatRegistered                     bool           `json:"vatRegistered"`
	VatNumber                         string         `json:"vatNumber,omitempty" validate:"max=20"`
	RequiresGoverningBodyRegistration bool           `json:"requiresGoverningBodyRegistration"`
	GoverningBodyDetails              *GoverningBody `json:"governingBodyDetails,omitempty"`
	IsFranchise                       bool           `json:"isFranchise"`
}

func (*CompanyStructure) Kind() SectionKind { return SectionCompanyStructure }

// ActivityAndNeeds

type ProspectiveEmployee struct {
	FullName      string   `json:"fullName" validate:"required,max=200"`
	JobTitle      string   `json:"jobTitle,omitempty" validate:"max=200"`
	Nationality   string   `json:"nationality,omitempty" validate:"max=100"`
	CurrentlyInUK *bool    `json:"currentlyInUk,omitempty"`
	Passport      *FileRef `json:"passport,omitempty"`
}

type ActivityAndNeeds struct {
	BusinessActivities      string                `json:"businessActivities,omitempty" validate:"max=5000"`
	EmploysMigrantWorkers   bool                  `json:"employsMigrantWorkers"`
	MigrantWorkerCount      *int                  `json:"migrantWorkerCount,omitempty" validate:"omitempty,min=0"`
	HasIdentifiedCandidates bool                  `json:"hasIdentifiedCandidates"`
	ProspectiveEmployees    []ProspectiveEmployee `json:"prospectiveEmployees,omitempty" validate:"dive"`
	ReasonsForSponsorship   []string              `json:"reasonsForSponsorship" validate:"dive,required,max=500"`
	HasHRPlatform           bool                  `json:"hasHRPlatform"`
	HRPlatformName          string                `json:"hrPlatformName,omitempty" validate:"max=200"`
	HRPlatformCoversAll     *bool                 `json:"hrPlatformCoversAll,omitempty"`
	WantsBorderlessApp      *bool                 `json:"wantsBorderlessApp,omitempty"`
	CompliancePlan          string                `json:"compliancePlan,omitempty" validate:"max=5000"`
}

func (*ActivityAndNeeds) Kind() SectionKind { return SectionActivityAndNeeds }

// PersonDetails is shared by the authorising officer and the level 1 user.
type PersonDetails struct {
	Title                      string `json:"title,omitempty" validate:"max=20"`
	FirstName                  string `json:"firstName" validate:"required,max=100"`
	LastName                   string `json:"lastName" validate:"required,max=100"`
	PreviouslyKnownAs          string `json:"previouslyKnownAs,omitempty" validate:"max=200"`
	PhoneNumber                string `json:"phoneNumber" validate:"required,uk_phone"`
	Email                      string `json:"email" validate:"required,email"`
	DateOfBirth                string `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	HasNationalInsuranceNumber *bool  `json:"hasNationalInsuranceNumber" validate:"required"`
	NationalInsuranceNumber    string `json:"nationalInsuranceNumber,omitempty" validate:"omitempty,ni_number"`
	NIExemptReason             string `json:"niExemptReason,omitempty" validate:"max=2000"`
	Nationality                string `json:"nationality" validate:"required,max=100"`
	IsSettledWorker            *bool  `json:"isSettledWorker" validate:"required"`
	ImmigrationStatus          string `json:"immigrationStatus,omitempty" validate:"max=200"`
	PassportNumber             string `json:"passportNumber,omitempty" validate:"max=50"`
	HomeOfficeReference        string `json:"homeOfficeReference,omitempty" validate:"max=100"`
	PermissionExpiryDate       string `json:"permissionExpiryDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	HasConvictions             *bool  `json:"hasConvictions" validate:"required"`
	ConvictionDetails          string `json:"convictionDetails,omitempty" validate:"max=5000"`
}

type AuthorisingOfficer struct {
	PersonDetails
	CompanyAddress     *Address `json:"companyAddress" validate:"required"`
	CompanyRole        string   `json:"companyRole" validate:"required,max=200"`
	HasUpcomingHoliday *bool    `json:"hasUpcomingHoliday" validate:"required"`
}

func (*AuthorisingOfficer) Kind() SectionKind { return SectionAuthorisingOfficer }

// SystemAccess

type Level1User struct {
	PersonDetails
	RoleInCompany string   `json:"roleInCompany" validate:"required,max=200"`
	Address       *Address `json:"address" validate:"required"`
}

type SystemAccess struct {
	Level1Access *bool       `json:"level1Access" validate:"required"`
	Level1User   *Level1User `json:"level1User,omitempty"`
}

func (*SystemAccess) Kind() SectionKind { return SectionSystemAccess }

// SupportingDocuments

type SupportingDocuments struct {
	// Conditional on answers given in earlier sections.
	AuthorisingOfficerPassport *FileRef `json:"authorisingOfficerPassport,omitempty"`
	AuthorisingOfficerBRP      *FileRef `json:"authorisingOfficerBRP,omitempty"`
	LetterOfRejection          *FileRef `json:"letterOfRejection,omitempty"`
	LetterOfRevocation         *FileRef `json:"letterOfRevocation,omitempty"`
	RecruitersAuthority        *FileRef `json:"recruitersAuthority,omitempty"`

	AuditedAnnualAccounts       *FileRef `json:"auditedAnnualAccounts" validate:"required"`
	CertificateOfIncorporation  *FileRef `json:"certificateOfIncorporation" validate:"required"`
	BusinessBankStatement       *FileRef `json:"businessBankStatement" validate:"required"`
	EmployersLiabilityInsurance *FileRef `json:"employersLiabilityInsurance" validate:"required"`

	GoverningBodyRegistration *FileRef `json:"governingBodyRegistration,omitempty"`
	FranchiseAgreement        *FileRef `json:"franchiseAgreement,omitempty"`
	ServiceUserAgreements     *FileRef `json:"serviceUserAgreements,omitempty"`
	VatRegistration           *FileRef `json:"vatRegistration,omitempty"`
	PayeConfirmation          *FileRef `json:"payeConfirmation,omitempty"`
	BusinessPremiseProof      *FileRef `json:"businessPremiseProof,omitempty"`
	HmrcTaxReturns            *FileRef `json:"hmrcTaxReturns,omitempty"`
	CurrentVacancies          *FileRef `json:"currentVacancies,omitempty"`
	TenderAgreements          *FileRef `json:"tenderAgreements,omitempty"`
	OrgChart                  *FileRef `json:"orgChart,omitempty"`

	RightToWorkChecks   []FileRef `json:"rightToWorkChecks,omitempty" validate:"max=50,dive"`
	AdditionalDocuments []FileRef `json:"additionalDocuments,omitempty" validate:"max=50,dive"`
}

func (*SupportingDocuments) Kind() SectionKind { return SectionSupportingDocuments }

// DocumentSlots are the upload targets accepted by the document broker.
// "passport" is the prospective employee passport in ActivityAndNeeds.
var DocumentSlots = map[string]bool{
	"authorisingOfficerPassport":  true,
	"authorisingOfficerBRP":       true,
	"letterOfRejection":           true,
	"letterOfRevocation":          true,
	"recruitersAuthority":         true,
	"auditedAnnualAccounts":       true,
	"certificateOfIncorporation":  true,
	"businessBankStatement":       true,
	"employersLiabilityInsurance": true,
	"governingBodyRegistration":   true,
	"franchiseAgreement":          true,
	"serviceUserAgreements":       true,
	"vatRegistration":             true,
	"payeConfirmation":            true,
	"businessPremiseProof":        true,
	"hmrcTaxReturns":              true,
	"currentVacancies":            true,
	"tenderAgreements":            true,
	"orgChart":                    true,
	"rightToWorkChecks":           true,
	"additionalDocuments":         true,
	"passport":                    true,
}

// OrganizationSize

type OrganizationSize struct {
	TurnoverBelow15M *bool `json:"turnoverBelow15M" validate:"required"`
	AssetsBelow7_5M  *bool `json:"assetsBelow7_5M" validate:"required"`
	EmployeesBelow50 *bool `json:"employeesBelow50" validate:"required"`
}

func (*OrganizationSize) Kind() SectionKind { return SectionOrganizationSize }

// IsSmallSponsor reports whether every threshold is met, which qualifies the
// sponsor for the reduced skills charge.
func (o *OrganizationSize) IsSmallSponsor() bool {
	return isTrue(o.TurnoverBelow15M) && isTrue(o.AssetsBelow7_5M) && isTrue(o.EmployeesBelow50)
}

// Declarations

type Declarations struct {
	ServiceType          string `json:"serviceType" validate:"required,max=100"`
	CanMeetSponsorDuties string `json:"canMeetSponsorDuties" validate:"required,max=100"`
	AgreesToTerms        bool   `json:"agreesToTerms"`
}

func (*Declarations) Kind() SectionKind { return SectionDeclarations }

// SectionSet holds the decoded sections of one application.
type SectionSet struct {
	GettingStarted      *GettingStarted      `json:"gettingStarted,omitempty"`
	AboutYourCompany    *AboutYourCompany    `json:"aboutYourCompany,omitempty"`
	CompanyStructure    *CompanyStructure    `json:"companyStructure,omitempty"`
	ActivityAndNeeds    *ActivityAndNeeds    `json:"activityAndNeeds,omitempty"`
	AuthorisingOfficer  *AuthorisingOfficer  `json:"authorisingOfficer,omitempty"`
	SystemAccess        *SystemAccess        `json:"systemAccess,omitempty"`
	SupportingDocuments *SupportingDocuments `json:"supportingDocuments,omitempty"`
	OrganizationSize    *OrganizationSize    `json:"organizationSize,omitempty"`
	Declarations        *Declarations        `json:"declarations,omitempty"`
}

func (s *SectionSet) Put(section Section) {
	switch v := section.(type) {
	case *GettingStarted:
		s.GettingStarted = v
	case *AboutYourCompany:
		s.AboutYourCompany = v
	case *CompanyStructure:
		s.CompanyStructure = v
	case *ActivityAndNeeds:
		s.ActivityAndNeeds = v
	case *AuthorisingOfficer:
		s.AuthorisingOfficer = v
	case *SystemAccess:
		s.SystemAccess = v
	case *SupportingDocuments:
		s.SupportingDocuments = v
	case *OrganizationSize:
		s.OrganizationSize = v
	case *Declarations:
		s.Declarations = v
	}
}

// DecodeSectionSet decodes stored section documents. Stored documents are
// decoded leniently so that fields removed from the schema do not break reads.
func DecodeSectionSet(raw map[SectionKind]json.RawMessage) (SectionSet, error) {
	var set SectionSet
	for kind, data := range raw {
		section, err := NewSection(kind)
		if err != nil {
			return set, err
		}
		if err := json.Unmarshal(data, section); err != nil {
			return set, fmt.Errorf("decode %s: %w", kind, err)
		}
		set.Put(section)
	}
	return set, nil
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
