package main

import (
	"bufio"
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/svjt78/ragmesh"
	"github.com/svjt78/ragmesh/config"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/ingestion"
)

type section struct {
	docID string
	page  int
	text  string
}

var forms = map[string]core.Document{
	"ho3": {DocID: "ho3", Filename: "ho3_policy.pdf", DocType: "policy", FormNumber: "HO 00 03", EffectiveDate: "2024-01-01", State: "CA"},
	"dp1": {DocID: "dp1", Filename: "dp1_dwelling.pdf", DocType: "policy", FormNumber: "DP 00 01", EffectiveDate: "2023-06-01", State: "CA"},
	"end": {DocID: "end", Filename: "water_backup_endorsement.pdf", DocType: "endorsement", FormNumber: "HO 04 95", EffectiveDate: "2024-01-01", State: "CA"},
}

var sections = []section{
	{"ho3", 1, "DEFINITIONS. In this policy, you and your refer to the Named Insured shown in the Declarations and the spouse if a resident of the same household."},
	{"ho3", 1, "Residence premises means the one family dwelling where you reside and which is shown as the residence premises in the Declarations."},
	{"ho3", 3, "SECTION I PROPERTY COVERAGES. Coverage A Dwelling covers the dwelling on the residence premises including structures attached to the dwelling."},
	{"ho3", 3, "Coverage B Other Structures covers other structures on the residence premises set apart from the dwelling by clear space."},
	{"ho3", 4, "Coverage C Personal Property covers personal property owned or used by an insured while it is anywhere in the world."},
	{"ho3", 5, "Coverage D Loss Of Use pays Additional Living Expense if a loss makes the residence premises not fit to live in."},
	{"ho3", 8, "We insure against sudden and accidental discharge or overflow of water or steam from within a plumbing, heating or air conditioning system."},
	{"ho3", 8, "Freezing of a plumbing system is covered only if you have used reasonable care to maintain heat in the building or shut off the water supply."},
	{"ho3", 9, "SECTION I EXCLUSIONS. Water Damage means flood, surface water, waves, tidal water or overflow of a body of water, whether or not driven by wind."},
	{"ho3", 9, "Water which backs up through sewers or drains or overflows from a sump pump is excluded unless an endorsement provides coverage."},
	{"ho3", 10, "Earth Movement including earthquake, landslide, mudflow and sinkhole is excluded regardless of any other cause contributing to the loss."},
	{"ho3", 12, "Deductible. Unless otherwise noted, we will pay only that part of the total of all loss payable that exceeds the deductible amount shown in the Declarations."},
	{"ho3", 14, "Loss Settlement. Buildings under Coverage A are settled at replacement cost without deduction for depreciation, subject to the limit of liability."},
	{"dp1", 1, "This Dwelling Property policy insures the described location against Fire, Lightning and Internal Explosion only unless Extended Coverage is purchased."},
	{"dp1", 2, "Coverage A Dwelling under this form is settled at actual cash value at the time of loss, which includes a deduction for depreciation."},
	{"dp1", 3, "Vandalism or malicious mischief is covered only when the dwelling has not been vacant for more than sixty consecutive days before the loss."},
	{"dp1", 4, "Fair Rental Value is paid when a covered loss makes the part of the described location rented to others unfit for its normal use."},
	{"end", 1, "WATER BACK UP AND SUMP DISCHARGE OR OVERFLOW. We will pay up to the limit shown in the Schedule for direct physical loss caused by water which backs up through sewers or drains."},
	{"end", 1, "This endorsement does not increase the limit of liability for Coverage A Dwelling. A deductible of five hundred dollars applies to each loss."},
}

var (
	configFile = flag.String("config", "", "settings file")
	seedFile   = flag.String("src", "", "file of seed paragraphs separated by blank lines")
	docID      = flag.String("doc", "custom", "document id used for -src paragraphs")
	perPage    = flag.Int("per-page", 3, "paragraphs per page for -src")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// paragraphsFromFile returns an iterator over blank-line separated
// paragraphs, numbering pages every perPage paragraphs.
func paragraphsFromFile(filename, docID string, perPage int) (iter.Seq[section], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(section) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		var lines []string
		count := 0
		flush := func() bool {
			if len(lines) == 0 {
				return true
			}
			s := section{docID: docID, page: count/perPage + 1, text: strings.Join(lines, " ")}
			lines = lines[:0]
			count++
			return yield(s)
		}
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				if !flush() {
					return
				}
				continue
			}
			lines = append(lines, line)
		}
		flush()
	}, nil
}

// sectionsFromSlice returns an iterator over a slice of sections.
func sectionsFromSlice(items []section) iter.Seq[section] {
	return func(yield func(section) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// groupDocuments assembles sections into document pages for the ingestion
// chunker. Sections on the same page become paragraphs of one page text.
// Sections of unknown documents get a bare document named after the id.
func groupDocuments(source iter.Seq[section]) []*core.Document {
	var docs []*core.Document
	byID := make(map[string]*core.Document)
	for s := range source {
		doc, ok := byID[s.docID]
		if !ok {
			tmpl, known := forms[s.docID]
			if !known {
				tmpl = core.Document{DocID: s.docID, Filename: filepath.Base(s.docID) + ".txt", DocType: "custom"}
			}
			doc = &tmpl
			byID[s.docID] = doc
			docs = append(docs, doc)
		}
		if n := len(doc.Pages); n > 0 && doc.Pages[n-1].PageNo == s.page {
			doc.Pages[n-1].Text += "\n\n" + s.text
			continue
		}
		doc.Pages = append(doc.Pages, &core.Page{PageNo: s.page, Text: s.text})
	}
	return docs
}

func ingestAll(ctx context.Context, pipeline *ingestion.Pipeline, docs []*core.Document) error {
	for _, doc := range docs {
		if err := pipeline.Ingest(ctx, doc); err != nil {
			return err
		}
		slog.Info("seeded document", "doc_id", doc.DocID, "chunks", len(doc.Chunks))
	}
	return pipeline.Wait()
}

func main() {
	settings, err := config.LoadSettings(*configFile)
	if err != nil {
		panic(err)
	}
	sys, err := ragmesh.Open(settings)
	if err != nil {
		panic(err)
	}
	defer sys.Close()

	ingester, err := sys.NewIngestionPipeline()
	if err != nil {
		panic(err)
	}
	defer ingester.Release()

	ctx := context.Background()

	var source iter.Seq[section]
	if *seedFile != "" {
		source, err = paragraphsFromFile(*seedFile, *docID, max(*perPage, 1))
		if err != nil {
			panic(err)
		}
	} else {
		source = sectionsFromSlice(sections)
	}

	if err := ingestAll(ctx, ingester, groupDocuments(source)); err != nil {
		panic(err)
	}
}
