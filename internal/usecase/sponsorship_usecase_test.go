package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/internal/repository/memory"
	"softhire-backend/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sponsorshipFixture struct {
	uc       domain.SponsorshipUsecase
	repo     *memory.SponsorshipRepository
	users    *memory.UserRepository
	notifier *recordingNotifier
}

func newSponsorshipFixture(t *testing.T) *sponsorshipFixture {
	t.Helper()
	repo := memory.NewSponsorshipRepository()
	users := memory.NewUserRepository()
	notifier := &recordingNotifier{}
	uc := usecase.NewSponsorshipUsecase(usecase.SponsorshipDeps{
		Repo:     repo,
		Users:    users,
		Notifier: notifier,
	})
	return &sponsorshipFixture{uc: uc, repo: repo, users: users, notifier: notifier}
}

// start creates an application owned by accountID.
func (f *sponsorshipFixture) start(t *testing.T, accountID string) *domain.SponsorshipApplication {
	t.Helper()
	app, created, err := f.uc.CreateApplication(userCtx(accountID, domain.RoleRecruiter), accountID)
	require.NoError(t, err)
	require.True(t, created)
	return app
}

func (f *sponsorshipFixture) completeAll(t *testing.T, accountID, appID string) {
	t.Helper()
	ctx := userCtx(accountID, domain.RoleRecruiter)
	for _, kind := range domain.SectionKinds {
		_, err := f.uc.UpdateSection(ctx, appID, accountID, kind, sectionJSON(kind))
		require.NoError(t, err, "section %s", kind)
	}
}

func TestCreateApplication(t *testing.T) {
	f := newSponsorshipFixture(t)

	t.Run("returns the existing application on repeat calls", func(t *testing.T) {
		ctx := userCtx("acct-1", domain.RoleRecruiter)
		first, created, err := f.uc.CreateApplication(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, domain.StatusDraft, first.Status())

		second, created, err := f.uc.CreateApplication(ctx, "acct-1")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("rejects anonymous callers", func(t *testing.T) {
		_, _, err := f.uc.CreateApplication(context.Background(), "")
		requireAppError(t, err, http.StatusUnauthorized)
	})

	t.Run("rejects accounts without a recruiter role", func(t *testing.T) {
		_, _, err := f.uc.CreateApplication(userCtx("acct-2", "candidate"), "acct-2")
		requireAppError(t, err, http.StatusForbidden)
	})
}

func TestGetApplication_Access(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")

	t.Run("owner sees every section as missing", func(t *testing.T) {
		detail, err := f.uc.GetApplication(userCtx("owner", domain.RoleRecruiter), app.ID, "owner")
		require.NoError(t, err)
		assert.Equal(t, domain.SectionKinds, detail.Missing)
		assert.Equal(t, domain.StatusDraft, detail.Status)
	})

	t.Run("other recruiters are forbidden", func(t *testing.T) {
		_, err := f.uc.GetApplication(userCtx("intruder", domain.RoleRecruiter), app.ID, "intruder")
		requireAppError(t, err, http.StatusForbidden)
	})

	t.Run("admins can read", func(t *testing.T) {
		_, err := f.uc.GetApplication(userCtx("admin-1", domain.RoleAdmin), app.ID, "admin-1")
		assert.NoError(t, err)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := f.uc.GetApplication(userCtx("owner", domain.RoleRecruiter), "nope", "owner")
		requireAppError(t, err, http.StatusNotFound)
	})
}

func TestUpdateSection_MergesPatch(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")
	ctx := userCtx("owner", domain.RoleRecruiter)

	_, err := f.uc.UpdateSection(ctx, app.ID, "owner", domain.SectionAboutYourCompany, sectionJSON(domain.SectionAboutYourCompany))
	require.NoError(t, err)

	section, err := f.uc.UpdateSection(ctx, app.ID, "owner", domain.SectionAboutYourCompany,
		json.RawMessage(`{"companyName": "Acme Healthcare Ltd", "website": "https://acme.example.com"}`))
	require.NoError(t, err)

	about := section.(*domain.AboutYourCompany)
	assert.Equal(t, "Acme Healthcare Ltd", about.CompanyName)
	assert.Equal(t, "https://acme.example.com", about.Website)
	require.NotNil(t, about.RegisteredAddress)
	assert.Equal(t, "London", about.RegisteredAddress.City)

	stored, err := f.uc.GetSection(ctx, app.ID, "owner", domain.SectionAboutYourCompany)
	require.NoError(t, err)
	assert.Equal(t, "Acme Healthcare Ltd", stored.(*domain.AboutYourCompany).CompanyName)
}

func TestUpdateSection_Rejections(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")
	ctx := userCtx("owner", domain.RoleRecruiter)

	tests := []struct {
		name    string
		account string
		kind    domain.SectionKind
		body    string
		code    int
		message string
	}{
		{"not an object", "owner", domain.SectionDeclarations, `["x"]`, http.StatusBadRequest, "Section payload must be a JSON object."},
		{"unknown field", "owner", domain.SectionDeclarations, `{"serviceType":"a","canMeetSponsorDuties":"b","agreesToTerms":true,"extra":1}`, http.StatusBadRequest, `Unknown field "extra".`},
		{"wrong type", "owner", domain.SectionOrganizationSize, `{"turnoverBelow15M":"yes","assetsBelow7_5M":true,"employeesBelow50":true}`, http.StatusBadRequest, "turnoverBelow15M must be a boolean."},
		{"cross field rule", "owner", domain.SectionDeclarations, `{"serviceType":"a","canMeetSponsorDuties":"b","agreesToTerms":false}`, http.StatusBadRequest, "Missing required fields: agreesToTerms."},
		{"not the owner", "intruder", domain.SectionDeclarations, validSections[domain.SectionDeclarations], http.StatusForbidden, ""},
		{"unknown section", "owner", domain.SectionKind("bogus"), `{}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.UpdateSection(ctx, app.ID, tt.account, tt.kind, json.RawMessage(tt.body))
			appErr := requireAppError(t, err, tt.code)
			if tt.message != "" {
				assert.Equal(t, tt.message, appErr.Message)
			}
		})
	}

	stored, err := f.repo.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.SectionRefs, "rejected updates must not store anything")
}

func TestUpdateSection_SwitchingAnswerOffDropsDependents(t *testing.T) {
	level1 := `{"level1Access": true, "level1User": {
		"firstName": "Sam", "lastName": "Smith", "phoneNumber": "07700900456", "email": "sam@acme.co.uk",
		"dateOfBirth": "1990-01-01", "hasNationalInsuranceNumber": true, "nationalInsuranceNumber": "AB123456C",
		"nationality": "Irish", "isSettledWorker": true, "hasConvictions": false, "roleInCompany": "HR Manager",
		"address": {"line1": "2 Low Road", "city": "Leeds", "postcode": "LS1 1AA", "country": "United Kingdom"}}}`

	tests := []struct {
		name   string
		kind   domain.SectionKind
		saved  string
		patch  string
		verify func(t *testing.T, section domain.Section)
	}{
		{
			name: "recruitment agency",
			kind: domain.SectionGettingStarted,
			saved: `{"hasSponsorLicense": {"value": false}, "hadSponsorLicenseBefore": {"value": false},
				"rejectedBefore": {"value": false}, "isRecruitmentAgency": {"value": true, "contractsOutToOthers": false}}`,
			patch: `{"isRecruitmentAgency": {"value": false}}`,
			verify: func(t *testing.T, section domain.Section) {
				gs := section.(*domain.GettingStarted)
				assert.False(t, *gs.IsRecruitmentAgency.Value)
				assert.Nil(t, gs.IsRecruitmentAgency.ContractsOutToOthers)
			},
		},
		{
			name: "rejected before",
			kind: domain.SectionGettingStarted,
			saved: `{"hasSponsorLicense": {"value": false}, "hadSponsorLicenseBefore": {"value": false},
				"rejectedBefore": {"value": true, "reason": "Missing documents"}, "isRecruitmentAgency": {"value": false}}`,
			patch: `{"rejectedBefore": {"value": false}}`,
			verify: func(t *testing.T, section domain.Section) {
				assert.Empty(t, section.(*domain.GettingStarted).RejectedBefore.Reason)
			},
		},
		{
			name:  "national insurance exemption",
			kind:  domain.SectionAuthorisingOfficer,
			saved: validSections[domain.SectionAuthorisingOfficer],
			patch: `{"hasNationalInsuranceNumber": false, "niExemptReason": "Recently arrived"}`,
			verify: func(t *testing.T, section domain.Section) {
				ao := section.(*domain.AuthorisingOfficer)
				assert.Empty(t, ao.NationalInsuranceNumber)
				assert.Equal(t, "Recently arrived", ao.NIExemptReason)
			},
		},
		{
			name:  "level 1 access",
			kind:  domain.SectionSystemAccess,
			saved: level1,
			patch: `{"level1Access": false}`,
			verify: func(t *testing.T, section domain.Section) {
				assert.Nil(t, section.(*domain.SystemAccess).Level1User)
			},
		},
		{
			name: "borderless app",
			kind: domain.SectionActivityAndNeeds,
			saved: `{"employsMigrantWorkers": false, "hasIdentifiedCandidates": false, "reasonsForSponsorship": ["Skills shortage"],
				"hasHRPlatform": true, "hrPlatformName": "BreatheHR", "hrPlatformCoversAll": true,
				"wantsBorderlessApp": false, "compliancePlan": "Monthly audits"}`,
			patch: `{"wantsBorderlessApp": true}`,
			verify: func(t *testing.T, section domain.Section) {
				an := section.(*domain.ActivityAndNeeds)
				assert.True(t, *an.WantsBorderlessApp)
				assert.Empty(t, an.CompliancePlan)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSponsorshipFixture(t)
			app := f.start(t, "owner")
			ctx := userCtx("owner", domain.RoleRecruiter)

			_, err := f.uc.UpdateSection(ctx, app.ID, "owner", tt.kind, json.RawMessage(tt.saved))
			require.NoError(t, err)

			_, err = f.uc.UpdateSection(ctx, app.ID, "owner", tt.kind, json.RawMessage(tt.patch))
			require.NoError(t, err)

			stored, err := f.uc.GetSection(ctx, app.ID, "owner", tt.kind)
			require.NoError(t, err)
			tt.verify(t, stored)
		})
	}
}

func TestUpdateSection_ExplicitDependentStillRejected(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")
	ctx := userCtx("owner", domain.RoleRecruiter)

	_, err := f.uc.UpdateSection(ctx, app.ID, "owner", domain.SectionGettingStarted, sectionJSON(domain.SectionGettingStarted))
	require.NoError(t, err)

	_, err = f.uc.UpdateSection(ctx, app.ID, "owner", domain.SectionGettingStarted,
		json.RawMessage(`{"isRecruitmentAgency": {"value": false, "contractsOutToOthers": true}}`))
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "contractsOutToOthers should not be set if not a recruitment agency.", appErr.Message)
}

func TestSubmit_ReportsMissingSections(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")
	ctx := userCtx("owner", domain.RoleRecruiter)

	_, err := f.uc.UpdateSection(ctx, app.ID, "owner", domain.SectionGettingStarted, sectionJSON(domain.SectionGettingStarted))
	require.NoError(t, err)

	_, err = f.uc.Submit(ctx, app.ID, "owner")
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "Please complete all sections before submission.", appErr.Message)

	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	missing := details["missingSections"].([]domain.SectionKind)
	assert.Len(t, missing, len(domain.SectionKinds)-1)
	assert.NotContains(t, missing, domain.SectionGettingStarted)
	assert.Equal(t, domain.SectionAboutYourCompany, missing[0])

	subs, _ := f.notifier.counts()
	assert.Zero(t, subs)
}

func TestSubmit_LocksApplication(t *testing.T) {
	f := newSponsorshipFixture(t)
	require.NoError(t, f.users.Create(context.Background(), &domain.User{ID: "owner", Email: "owner@acme.co.uk", FullName: "Olivia Owner", Role: domain.RoleRecruiter}))
	app := f.start(t, "owner")
	f.completeAll(t, "owner", app.ID)
	ctx := userCtx("owner", domain.RoleRecruiter)

	submitted, err := f.uc.Submit(ctx, app.ID, "owner")
	require.NoError(t, err)
	assert.True(t, submitted.IsSubmitted)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, domain.StatusSubmitted, submitted.Status())

	require.Len(t, f.notifier.submissions, 1)
	snap := f.notifier.submissions[0]
	assert.Equal(t, "owner@acme.co.uk", snap.AccountEmail)
	assert.Equal(t, "Acme Care Ltd", snap.CompanyName())
	assert.NotNil(t, snap.Sections.Declarations)

	t.Run("second submit conflicts", func(t *testing.T) {
		_, err := f.uc.Submit(ctx, app.ID, "owner")
		requireAppError(t, err, http.StatusConflict)
	})

	t.Run("sections are frozen", func(t *testing.T) {
		_, err := f.uc.UpdateSection(ctx, app.ID, "owner", domain.SectionDeclarations,
			json.RawMessage(`{"serviceType": "Global Business Mobility"}`))
		requireAppError(t, err, http.StatusConflict)

		stored, err := f.uc.GetSection(ctx, app.ID, "owner", domain.SectionDeclarations)
		require.NoError(t, err)
		assert.Equal(t, "Skilled Worker", stored.(*domain.Declarations).ServiceType)
	})

	subs, _ := f.notifier.counts()
	assert.Equal(t, 1, subs)
}

func TestSubmit_ConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")
	f.completeAll(t, "owner", app.ID)
	ctx := userCtx("owner", domain.RoleRecruiter)

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.Submit(ctx, app.ID, "owner")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, conflicts)
	subs, _ := f.notifier.counts()
	assert.Equal(t, 1, subs)
}

func TestSubmit_RacingSectionWrite(t *testing.T) {
	f := newSponsorshipFixture(t)

	for round := 0; round < 50; round++ {
		account := fmt.Sprintf("owner-%d", round)
		ctx := userCtx(account, domain.RoleRecruiter)
		app := f.start(t, account)
		f.completeAll(t, account, app.ID)

		var (
			wg        sync.WaitGroup
			updateErr error
			submitErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, updateErr = f.uc.UpdateSection(ctx, app.ID, account, domain.SectionAboutYourCompany,
				json.RawMessage(`{"companyName": "Renamed Care Ltd"}`))
		}()
		go func() {
			defer wg.Done()
			_, submitErr = f.uc.Submit(ctx, app.ID, account)
		}()
		wg.Wait()

		require.NoError(t, submitErr, "round %d", round)
		if updateErr != nil {
			requireAppError(t, updateErr, http.StatusConflict)
		}

		stored, err := f.uc.GetSection(ctx, app.ID, account, domain.SectionAboutYourCompany)
		require.NoError(t, err)
		name := stored.(*domain.AboutYourCompany).CompanyName
		if updateErr == nil {
			assert.Equal(t, "Renamed Care Ltd", name, "round %d", round)
		} else {
			assert.Equal(t, "Acme Care Ltd", name, "round %d", round)
		}

		// The submission snapshot matches what was frozen.
		f.notifier.mu.Lock()
		snap := f.notifier.submissions[len(f.notifier.submissions)-1]
		f.notifier.mu.Unlock()
		assert.Equal(t, name, snap.CompanyName(), "round %d", round)
	}
}

func TestSubmit_NotifierFailureDoesNotFailSubmission(t *testing.T) {
	f := newSponsorshipFixture(t)
	f.notifier.err = assert.AnError
	app := f.start(t, "owner")
	f.completeAll(t, "owner", app.ID)

	submitted, err := f.uc.Submit(userCtx("owner", domain.RoleRecruiter), app.ID, "owner")
	require.NoError(t, err)
	assert.True(t, submitted.IsSubmitted)
}

func TestListApplications(t *testing.T) {
	f := newSponsorshipFixture(t)
	draft := f.start(t, "a")
	done := f.start(t, "b")
	f.completeAll(t, "b", done.ID)
	_, err := f.uc.Submit(userCtx("b", domain.RoleRecruiter), done.ID, "b")
	require.NoError(t, err)

	admin := userCtx("admin-1", domain.RoleAdmin)

	all, err := f.uc.ListApplications(admin, domain.ApplicationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	drafts, err := f.uc.ListApplications(admin, domain.ApplicationFilter{Status: domain.StatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	_, err = f.uc.ListApplications(admin, domain.ApplicationFilter{Status: "archived"})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = f.uc.ListApplications(userCtx("a", domain.RoleRecruiter), domain.ApplicationFilter{})
	requireAppError(t, err, http.StatusForbidden)
}

func TestGetSection_NotCompleted(t *testing.T) {
	f := newSponsorshipFixture(t)
	app := f.start(t, "owner")

	_, err := f.uc.GetSection(userCtx("owner", domain.RoleRecruiter), app.ID, "owner", domain.SectionSystemAccess)
	requireAppError(t, err, http.StatusNotFound)
}

func TestSponsorshipUsecase_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	repo := memory.NewSponsorshipRepository()
	uc := usecase.NewSponsorshipUsecase(usecase.SponsorshipDeps{
		Repo: repo,
		Now:  func() time.Time { return fixed },
	})

	app, _, err := uc.CreateApplication(userCtx("owner", domain.RoleRecruiter), "owner")
	require.NoError(t, err)
	assert.Equal(t, fixed, app.CreatedAt)
}
