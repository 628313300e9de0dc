// Package promotion classifies sales detail rows as regular, trigger or
// bonus lines and rewrites gift rows to reference the trigger that earned
// them.
package promotion

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/validation"
)

// Result is the outcome of linking one document.
type Result struct {
	Rows    []entity.Row
	Classes []entity.RowClass
	Orphans int
	// Skipped is true when a malformed config disabled linking and the
	// rows passed through untouched.
	Skipped bool
}

type indexedRow struct {
	row   entity.Row
	line  int64
	class entity.RowClass
}

// Link tags every row of a document and rewrites bonus and trigger fields.
// Rows are processed in line-number order (stable sort); the output has the
// same length as the input and preserves the multiset of article codes.
//
// A malformed config disables linking for the run: rows pass through
// untouched and a warning is logged.
func Link(rows []entity.Row, cfg *entity.PromotionConfig, log *zap.SugaredLogger) Result {
	if err := cfg.Validate(); err != nil {
		log.Warnw("promotion linking disabled", "reason", err)
		return Result{Rows: rows, Skipped: true}
	}

	indexed := make([]*indexedRow, len(rows))
	for i, row := range rows {
		line, _ := validation.ParseNumber(row[cfg.LineField])
		indexed[i] = &indexedRow{row: row.Clone(), line: line.IntPart()}
	}
	sort.SliceStable(indexed, func(a, b int) bool {
		return indexed[a].line < indexed[b].line
	})

	for _, ir := range indexed {
		ir.class = classify(ir.row, cfg)
	}

	// Multimap article -> positions of non-bonus rows, in document order.
	byArticle := make(map[string][]int)
	for i, ir := range indexed {
		if ir.class == entity.ClassBonus {
			continue
		}
		article := entity.CanonicalString(ir.row[cfg.ArticleField])
		if article == "" {
			continue
		}
		byArticle[article] = append(byArticle[article], i)
	}

	result := Result{
		Rows:    make([]entity.Row, 0, len(indexed)),
		Classes: make([]entity.RowClass, 0, len(indexed)),
	}

	for i, ir := range indexed {
		switch ir.class {
		case entity.ClassBonus:
			ref := entity.CanonicalString(ir.row[cfg.RefArticleField])
			lineRef, orphan := resolveTrigger(indexed, byArticle[ref], i)
			if orphan {
				result.Orphans++
				log.Warnw("bonus row has no trigger for its article",
					"article", ref, "line", ir.line)
			}

			qty, _ := validation.ParseNumber(ir.row[cfg.QuantityField])
			ir.row[cfg.BonusLineRefField] = lineRef
			ir.row[cfg.BonusQtyField] = qty
			ir.row[cfg.OrderedQtyField] = nil
			ir.row[cfg.InvoiceQtyField] = nil

		default: // TRIGGER and NORMAL rows carry their quantity forward
			qty, _ := validation.ParseNumber(ir.row[cfg.QuantityField])
			ir.row[cfg.OrderedQtyField] = qty
			ir.row[cfg.InvoiceQtyField] = qty
			ir.row[cfg.BonusLineRefField] = nil
			ir.row[cfg.BonusQtyField] = nil
		}

		result.Rows = append(result.Rows, ir.row)
		result.Classes = append(result.Classes, ir.class)
	}

	return result
}

// classify decides the row class from the configured detection fields.
func classify(row entity.Row, cfg *entity.PromotionConfig) entity.RowClass {
	indicator := entity.CanonicalString(row[cfg.BonusField])
	refArticle := entity.CanonicalString(row[cfg.RefArticleField])

	if indicator == cfg.BonusValue || refArticle != "" {
		return entity.ClassBonus
	}

	article := entity.CanonicalString(row[cfg.ArticleField])
	qty, _ := validation.ParseNumber(row[cfg.QuantityField])
	if article != "" && (indicator == "" || indicator == "0") && qty.GreaterThan(decimal.Zero) {
		return entity.ClassTrigger
	}
	return entity.ClassNormal
}

// resolveTrigger picks the trigger line for the bonus row at position i.
// Preference order: the nearest candidate earlier in the document, else the
// nearest later, else any candidate. With no candidate at all the row is an
// orphan and falls back to line 1.
func resolveTrigger(indexed []*indexedRow, candidates []int, i int) (lineRef int64, orphan bool) {
	if len(candidates) == 0 {
		return 1, true
	}

	best := -1
	for _, c := range candidates {
		if c < i && c > best {
			best = c
		}
	}
	if best >= 0 {
		return indexed[best].line, false
	}

	for _, c := range candidates {
		if c > i {
			return indexed[c].line, false
		}
	}

	return indexed[candidates[0]].line, false
}
