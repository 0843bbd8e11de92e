// Package plant は植物レコード管理と水やり状況判定のドメインロジックを提供する。
package plant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/plantcare/internal/model"
	"github.com/hitoshi/plantcare/internal/repository"
	"github.com/hitoshi/plantcare/internal/security"
)

// dateLayout は最終水やり日の入出力フォーマット。
const dateLayout = "2006-01-02"

// MaxIntervalDays は水やり間隔の上限（約100年）。
const MaxIntervalDays = 36500

// Input は植物の作成・更新リクエストの入力値。
// 作成と更新のどちらも全フィールドを置き換える。
type Input struct {
	Name         string `json:"name" validate:"required,max=100"`
	Species      string `json:"species" validate:"max=100"`
	LastWatered  string `json:"lastWatered" validate:"required"`
	IntervalDays int    `json:"intervalDays" validate:"required,min=1,max=36500"`
	Sunlight     string `json:"sunlight" validate:"omitempty,oneof=low medium high"`
	Indoors      *bool  `json:"indoors"`
	Notes        string `json:"notes" validate:"max=500"`
}

// View は植物レコードに派生値（次回予定日・水やり状況）を付加したもの。
type View struct {
	*model.Plant
	NextWaterDate time.Time
	Status        Status
}

// Service は植物管理のサービス層。
// すべての操作は呼び出し元（model.Caller）を明示的に受け取り、所有者以外のアクセスを許さない。
type Service struct {
	repo      repository.PlantRepository
	sanitizer security.TextSanitizer
	validate  *validator.Validate
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PlantRepository, sanitizer security.TextSanitizer) *Service {
	v := validator.New()
	// エラーメッセージにはJSONのフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		validate:  v,
		now:       time.Now,
	}
}

// WithClock は「今日」の判定に使う時計を差し替える。テスト用。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List は呼び出し元の植物一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, caller model.Caller) ([]View, error) {
	plants, err := s.repo.ListByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("植物一覧の取得に失敗しました: %w", err)
	}

	today := s.now()
	views := make([]View, len(plants))
	for i, p := range plants {
		views[i] = newView(p, today)
	}
	return views, nil
}

// Create は呼び出し元を所有者とする植物を作成する。
// 入力が不正な場合は何も保存せずにバリデーションエラーを返す。
func (s *Service) Create(ctx context.Context, caller model.Caller, input Input) (*View, error) {
	fields, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &model.Plant{
		ID:           uuid.New().String(),
		UserID:       caller.UserID,
		Name:         fields.Name,
		Species:      fields.Species,
		LastWatered:  fields.LastWatered,
		IntervalDays: fields.IntervalDays,
		Sunlight:     fields.Sunlight,
		Indoors:      fields.Indoors,
		Notes:        fields.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("植物の作成に失敗しました: %w", err)
	}

	slog.Info("plant created",
		slog.String("user_id", caller.UserID),
		slog.String("plant_id", p.ID),
	)

	view := newView(p, now)
	return &view, nil
}

// Update は呼び出し元が所有する植物を更新する。
// 存在しない、または他ユーザーの植物の場合はどちらも同じNotFoundエラーを返す。
func (s *Service) Update(ctx context.Context, caller model.Caller, plantID string, input Input) (*View, error) {
	fields, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	if !isValidID(plantID) {
		return nil, model.NewPlantNotFoundError(plantID)
	}

	p, err := s.repo.UpdateOwned(ctx, caller.UserID, plantID, fields)
	if err != nil {
		return nil, fmt.Errorf("植物の更新に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPlantNotFoundError(plantID)
	}

	view := newView(p, s.now())
	return &view, nil
}

// Delete は呼び出し元が所有する植物を削除する。
// 既に削除済みの場合もNotFoundエラーを返すため、2回目の削除は成功しない。
func (s *Service) Delete(ctx context.Context, caller model.Caller, plantID string) error {
	if !isValidID(plantID) {
		return model.NewPlantNotFoundError(plantID)
	}

	deleted, err := s.repo.DeleteOwned(ctx, caller.UserID, plantID)
	if err != nil {
		return fmt.Errorf("植物の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewPlantNotFoundError(plantID)
	}

	slog.Info("plant deleted",
		slog.String("user_id", caller.UserID),
		slog.String("plant_id", plantID),
	)
	return nil
}

// normalize は入力値をサニタイズ・検証し、保存用のフィールドに変換する。
func (s *Service) normalize(input Input) (model.PlantFields, error) {
	input.Name = s.sanitizer.Sanitize(input.Name)
	input.Species = s.sanitizer.Sanitize(input.Species)
	input.Notes = s.sanitizer.Sanitize(input.Notes)
	input.LastWatered = strings.TrimSpace(input.LastWatered)
	input.Sunlight = strings.ToLower(strings.TrimSpace(input.Sunlight))

	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return model.PlantFields{}, model.NewValidationError(fields...)
		}
		return model.PlantFields{}, fmt.Errorf("failed to validate plant input: %w", err)
	}

	lastWatered, err := ParseDate(input.LastWatered)
	if err != nil {
		return model.PlantFields{}, model.NewValidationError("lastWatered")
	}

	sunlight := model.DefaultSunlight
	if input.Sunlight != "" {
		sunlight = model.Sunlight(input.Sunlight)
	}

	indoors := true
	if input.Indoors != nil {
		indoors = *input.Indoors
	}

	return model.PlantFields{
		Name:         input.Name,
		Species:      input.Species,
		LastWatered:  lastWatered,
		IntervalDays: input.IntervalDays,
		Sunlight:     sunlight,
		Indoors:      indoors,
		Notes:        input.Notes,
	}, nil
}

// ParseDate はYYYY-MM-DDまたはRFC 3339形式の日付を暦日（UTC 0時）として解析する。
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return dateOnly(t.UTC()), nil
}

// FormatDate は暦日をYYYY-MM-DD形式に整形する。
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// isValidID は植物IDがUUID形式かどうかを判定する。
// 不正な形式のIDは「見つからない」として扱う。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newView(p *model.Plant, today time.Time) View {
	return View{
		Plant:         p,
		NextWaterDate: NextWaterDate(p.LastWatered, p.IntervalDays),
		Status:        ComputeStatus(p.LastWatered, p.IntervalDays, today),
	}
}
