package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"raildrops/models"
	"raildrops/testutil"

	"github.com/shopspring/decimal"
)

func validInput(now time.Time) GiveawayInput {
	prize := decimal.RequireFromString("250.456")
	return GiveawayInput{
		Title:          "  Free pizza night ",
		Description:    "Two pizzas and drinks",
		PrizeValue:     &prize,
		StartDate:      now.Add(-time.Hour),
		EndDate:        now.Add(48 * time.Hour),
		SignupQuestion: "Pick a topping",
		SignupOptions:  []string{"Pepperoni", " ", "Mushroom", "Pineapple"},
	}
}

func TestValidateGiveaway(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		mutate func(*GiveawayInput)
		field  string
	}{
		{"valid", func(*GiveawayInput) {}, ""},
		{"missing title", func(in *GiveawayInput) { in.Title = " " }, "title"},
		{"end before start", func(in *GiveawayInput) { in.EndDate = in.StartDate.Add(-time.Minute) }, "end_date"},
		{"end equals start", func(in *GiveawayInput) { in.EndDate = in.StartDate }, "end_date"},
		{"one option", func(in *GiveawayInput) { in.SignupOptions = []string{"Only", ""} }, "signup_options"},
		{"five options", func(in *GiveawayInput) { in.SignupOptions = []string{"a", "b", "c", "d", "e"} }, "signup_options"},
		{"no question no options", func(in *GiveawayInput) { in.SignupQuestion = ""; in.SignupOptions = nil }, ""},
		{"negative prize", func(in *GiveawayInput) { v := decimal.NewFromInt(-1); in.PrizeValue = &v }, "prize_value"},
		{"prize too large", func(in *GiveawayInput) { v := decimal.NewFromInt(100000000); in.PrizeValue = &v }, "prize_value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(now)
			tt.mutate(&in)
			_, err := ValidateGiveaway(in)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *GiveawayFieldError
			if !errors.As(err, &fe) || fe.Field != tt.field || !errors.Is(err, ErrInvalidGiveaway) {
				t.Fatalf("err = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestCreateAndUpdateGiveaway(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	businesses := NewBusinessService(db)
	svc := NewGiveawayService(db)
	now := time.Now().UTC()

	owner := models.Account{UserID: "biz-1", Kind: models.AccountBusiness}
	if _, err := svc.CreateGiveaway(ctx, owner, validInput(now)); !errors.Is(err, ErrBusinessNotFound) {
		t.Fatalf("without profile err = %v", err)
	}
	if _, err := businesses.CreateBusiness(ctx, owner, BusinessInput{Name: "Pizza Palace", City: "Bergen"}); err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}

	g, err := svc.CreateGiveaway(ctx, owner, validInput(now))
	if err != nil {
		t.Fatalf("CreateGiveaway: %v", err)
	}
	if g.Title != "Free pizza night" || g.Slug != "free-pizza-night" || !g.IsActive {
		t.Fatalf("giveaway = %+v", g)
	}
	if len(g.SignupOptions) != 3 {
		t.Fatalf("options = %v, blanks should be dropped", g.SignupOptions)
	}
	if !g.PrizeValue.Valid || g.PrizeValue.Decimal.String() != "250.46" {
		t.Fatalf("prize = %v", g.PrizeValue)
	}

	member := models.Account{UserID: "someone", Kind: models.AccountMember}
	if _, err := svc.CreateGiveaway(ctx, member, validInput(now)); !errors.Is(err, ErrNotBusinessOwner) {
		t.Fatalf("member create err = %v", err)
	}

	in := validInput(now)
	in.Title = "Pizza for two"
	inactive := false
	in.IsActive = &inactive
	updated, err := svc.UpdateGiveaway(ctx, owner, g.ID, in)
	if err != nil {
		t.Fatalf("UpdateGiveaway: %v", err)
	}
	if updated.Title != "Pizza for two" || updated.IsActive {
		t.Fatalf("updated = %+v", updated)
	}

	other := models.Account{UserID: "biz-2", Kind: models.AccountBusiness}
	if _, err := svc.UpdateGiveaway(ctx, other, g.ID, in); !errors.Is(err, ErrNotBusinessOwner) {
		t.Fatalf("foreign update err = %v", err)
	}

	own, err := svc.ListForBusiness(ctx, owner)
	if err != nil || len(own) != 1 {
		t.Fatalf("ListForBusiness = %v, %v", own, err)
	}
}

func TestListActive(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	businesses := NewBusinessService(db)
	svc := NewGiveawayService(db)
	now := time.Now().UTC()
	svc.Now = func() time.Time { return now }

	tromso := models.Account{UserID: "b-tromso", Kind: models.AccountBusiness}
	oslo := models.Account{UserID: "b-oslo", Kind: models.AccountBusiness}
	if _, err := businesses.CreateBusiness(ctx, tromso, BusinessInput{Name: "Nordlys", City: "Tromsø", PostalCode: "9008"}); err != nil {
		t.Fatal(err)
	}
	if _, err := businesses.CreateBusiness(ctx, oslo, BusinessInput{Name: "Fjord", City: "Oslo", PostalCode: "0150"}); err != nil {
		t.Fatal(err)
	}

	mk := func(acct models.Account, title string, start, end time.Time) {
		in := validInput(now)
		in.Title, in.StartDate, in.EndDate = title, start, end
		if _, err := svc.CreateGiveaway(ctx, acct, in); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk(tromso, "Soon ending", now.Add(-time.Hour), now.Add(time.Hour))
	mk(tromso, "Later ending", now.Add(-time.Hour), now.Add(72*time.Hour))
	mk(tromso, "Upcoming", now.Add(time.Hour), now.Add(96*time.Hour))
	mk(oslo, "Oslo one", now.Add(-time.Hour), now.Add(24*time.Hour))

	all, err := svc.ListActive(ctx, ListFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("running = %d, %v", len(all), err)
	}
	if all[0].Title != "Soon ending" || all[0].Business == nil {
		t.Fatalf("first = %+v, want soonest ending with business", all[0])
	}

	byCity, _ := svc.ListActive(ctx, ListFilter{City: "tromso"})
	if len(byCity) != 2 {
		t.Fatalf("tromso = %d, want 2", len(byCity))
	}
	withUpcoming, _ := svc.ListActive(ctx, ListFilter{City: "TROMSØ", AllDates: true})
	if len(withUpcoming) != 3 {
		t.Fatalf("tromsø all dates = %d, want 3", len(withUpcoming))
	}
	byPostal, _ := svc.ListActive(ctx, ListFilter{PostalCode: "0150"})
	if len(byPostal) != 1 || byPostal[0].Title != "Oslo one" {
		t.Fatalf("postal = %+v", byPostal)
	}
	page2, _ := svc.ListActive(ctx, ListFilter{Page: 2, PageSize: 2})
	if len(page2) != 1 {
		t.Fatalf("page 2 = %d, want 1", len(page2))
	}
}

func TestCreateBusiness(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewBusinessService(db)
	owner := models.Account{UserID: "biz-1", Kind: models.AccountBusiness}

	b, err := svc.CreateBusiness(ctx, owner, BusinessInput{Name: "Oslo Café", City: " Oslo ", PostalCode: "0150"})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	if b.Slug != "oslo-cafe" || b.City != "Oslo" || b.CityKey != "oslo" {
		t.Fatalf("business = %+v", b)
	}
	if _, err := svc.CreateBusiness(ctx, owner, BusinessInput{Name: "Second"}); !errors.Is(err, ErrBusinessExists) {
		t.Fatalf("second profile err = %v", err)
	}
	if _, err := svc.CreateBusiness(ctx, models.Account{UserID: "m", Kind: models.AccountMember}, BusinessInput{Name: "X"}); !errors.Is(err, ErrNotBusinessOwner) {
		t.Fatalf("member err = %v", err)
	}
	if _, err := svc.CreateBusiness(ctx, models.Account{UserID: "b2", Kind: models.AccountBusiness}, BusinessInput{Name: "Y", PostalCode: "01A"}); err == nil {
		t.Fatal("postal code with letters should be rejected")
	}

	got, err := svc.GetByOwner(ctx, "biz-1")
	if err != nil || got.ID != b.ID {
		t.Fatalf("GetByOwner = %+v, %v", got, err)
	}
	if _, err := svc.GetByOwner(ctx, "nobody"); !errors.Is(err, ErrBusinessNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestGetPublicBusiness(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewBusinessService(db)
	owner := models.Account{UserID: "biz-1", Kind: models.AccountBusiness}

	b, err := svc.CreateBusiness(ctx, owner, BusinessInput{Name: "Oslo Café", City: "Oslo"})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	now := time.Now().UTC()
	later := testutil.Giveaway(t, db, b, "Later", now.Add(72*time.Hour))
	sooner := testutil.Giveaway(t, db, b, "Sooner", now.Add(time.Hour))
	hidden := testutil.Giveaway(t, db, b, "Hidden", now.Add(2*time.Hour))
	if err := db.Model(hidden).Update("is_active", false).Error; err != nil {
		t.Fatal(err)
	}

	p, err := svc.GetPublic(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetPublic: %v", err)
	}
	if p.Business.Name != "Oslo Café" || len(p.Giveaways) != 2 {
		t.Fatalf("profile = %+v", p)
	}
	if p.Giveaways[0].ID != sooner.ID || p.Giveaways[1].ID != later.ID {
		t.Fatalf("giveaways = %s, %s, want soonest ending first", p.Giveaways[0].Title, p.Giveaways[1].Title)
	}

	for _, id := range []string{"not-a-uuid", "8b1f4c1e-0000-4000-8000-000000000000"} {
		if _, err := svc.GetPublic(ctx, id); !errors.Is(err, ErrBusinessNotFound) {
			t.Fatalf("GetPublic(%q) err = %v, want ErrBusinessNotFound", id, err)
		}
	}

	if !CanCreateGiveaway(owner, b) {
		t.Fatal("owner should be able to create giveaways")
	}
	if CanCreateGiveaway(models.Account{UserID: "biz-2", Kind: models.AccountBusiness}, b) {
		t.Fatal("another business must not create giveaways here")
	}
	if CanCreateGiveaway(models.Account{UserID: "biz-1", Kind: models.AccountMember}, b) {
		t.Fatal("a member account must not create giveaways")
	}
}
