package services

import (
	"cobranca/models"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CourseSummary сводка по одному курсу внутри группы
type CourseSummary struct {
	RecordID      string           `json:"record_id"`
	Course        string           `json:"course"`
	PaymentMethod string           `json:"payment_method"`
	Amount        decimal.Decimal  `json:"amount"`
	DueDate       time.Time        `json:"due_date"`
	DaysOverdue   int              `json:"days_overdue"`
	CallCount     int              `json:"call_count"`
	MessageCount  int              `json:"message_count"`
	Tag           models.StatusTag `json:"tag"`
	Proposals     models.Proposals `json:"proposals"`
}

// GroupedRecord записи одной персоны, сведенные в одну карточку.
// Не сохраняется, пересчитывается при каждом запросе.
type GroupedRecord struct {
	Key             string           `json:"key"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	TaxID           string           `json:"tax_id"`
	Phone           string           `json:"phone"`
	Courses         []CourseSummary  `json:"courses"`
	CallCount       int              `json:"call_count"`
	MessageCount    int              `json:"message_count"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	DaysOverdue     int              `json:"days_overdue"`
	Tag             models.StatusTag `json:"tag"`
	TagLabel        string           `json:"tag_label,omitempty"`
	LegalDeadline   *time.Time       `json:"legal_deadline,omitempty"`
	ThirdNoticeDate *time.Time       `json:"third_notice_date,omitempty"`
}

// groupKey ключ персоны; запись совсем без идентификаторов остается отдельной карточкой
func groupKey(rec *LoadedRecord) string {
	if key := rec.IdentityKey(); key != "" {
		return key
	}
	return rec.ID
}

// Group сводит записи по ключу персоны (CPF, затем email, затем имя).
// Записи одной персоны с разными идентификаторами не объединяются.
func Group(records []LoadedRecord) map[string]*GroupedRecord {
	groups := make(map[string]*GroupedRecord)

	for _, rec := range records {
		key := groupKey(&rec)

		g, ok := groups[key]
		if !ok {
			// Первая запись задает шапку карточки
			g = &GroupedRecord{
				Key:             key,
				Name:            rec.Name,
				Email:           rec.Email,
				TaxID:           rec.TaxID,
				Phone:           rec.Phone,
				TotalAmount:     decimal.Zero,
				DaysOverdue:     rec.DaysOverdue,
				Tag:             rec.Tag,
				LegalDeadline:   rec.LegalDeadline,
				ThirdNoticeDate: rec.ThirdNoticeDate,
			}
			groups[key] = g
		} else if rec.DaysOverdue > g.DaysOverdue {
			// Самая просроченная запись определяет метку и юридический срок
			g.DaysOverdue = rec.DaysOverdue
			g.Tag = rec.Tag
			g.LegalDeadline = rec.LegalDeadline
			g.ThirdNoticeDate = rec.ThirdNoticeDate
		}

		g.Courses = append(g.Courses, CourseSummary{
			RecordID:      rec.ID,
			Course:        rec.Course,
			PaymentMethod: rec.PaymentMethod,
			Amount:        rec.Amount,
			DueDate:       rec.DueDate,
			DaysOverdue:   rec.DaysOverdue,
			CallCount:     rec.CallCount,
			MessageCount:  rec.MessageCount,
			Tag:           rec.Tag,
			Proposals:     rec.ProposalSlots(),
		})
		g.CallCount += rec.CallCount
		g.MessageCount += rec.MessageCount
		g.TotalAmount = g.TotalAmount.Add(rec.Amount)
	}

	for _, g := range groups {
		if !g.Tag.Empty() {
			g.TagLabel = models.TagLabel(g.Tag.Kind)
		}
	}

	return groups
}

// SortGroups возвращает группы по возрастанию дней просрочки, при равенстве по имени
func SortGroups(groups map[string]*GroupedRecord) []*GroupedRecord {
	out := make([]*GroupedRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysOverdue != out[j].DaysOverdue {
			return out[i].DaysOverdue < out[j].DaysOverdue
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}
