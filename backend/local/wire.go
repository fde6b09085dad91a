package local

import (
	"maps"
	"slices"

	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/spelling"
)

// Terms, metadata, synonyms and spelling words are arbitrary byte strings.
// Codecs encode Go strings as UTF-8 text, so every byte string is carried
// as []byte on disk and survives any codec unchanged.

type wireTerm struct {
	Term      []byte   `json:"t"`
	WDF       uint32   `json:"wdf"`
	Positions []uint32 `json:"pos,omitempty"`
}

type wireValue struct {
	Slot  model.ValueSlot `json:"s"`
	Value []byte          `json:"v"`
}

type wireDoc struct {
	Data   []byte      `json:"data,omitempty"`
	Terms  []wireTerm  `json:"terms,omitempty"`
	Values []wireValue `json:"values,omitempty"`
}

type wireOp struct {
	Kind  shard.OpKind `json:"k"`
	DocID model.DocID  `json:"id,omitempty"`
	Doc   *wireDoc     `json:"doc,omitempty"`
	Key   []byte       `json:"key,omitempty"`
	Value []byte       `json:"val,omitempty"`
	Freq  uint32       `json:"f,omitempty"`
}

type wireBatch struct {
	Ops       []wireOp `json:"ops"`
	NextDocID uint64   `json:"next_docid"`
}

type wireDocEntry struct {
	ID  model.DocID `json:"id"`
	Doc *wireDoc    `json:"doc"`
}

type wirePair struct {
	Key   []byte `json:"k"`
	Value []byte `json:"v"`
}

type wireSynonyms struct {
	Term     []byte   `json:"t"`
	Synonyms [][]byte `json:"s"`
}

type wireSpelling struct {
	Word []byte `json:"w"`
	Freq uint64 `json:"f"`
}

// snapshot is the persisted form of a full state. Posting and value sets
// are derived on load.
type snapshot struct {
	NextDocID uint64         `json:"next_docid"`
	Docs      []wireDocEntry `json:"docs"`
	Metadata  []wirePair     `json:"metadata,omitempty"`
	Synonyms  []wireSynonyms `json:"synonyms,omitempty"`
	Spellings []wireSpelling `json:"spellings,omitempty"`
}

func toWireDoc(d *model.Document) *wireDoc {
	if d == nil {
		return nil
	}
	wd := &wireDoc{Data: d.Data}
	for _, t := range d.TermList() {
		ti := d.Terms[t]
		wd.Terms = append(wd.Terms, wireTerm{Term: []byte(t), WDF: ti.WDF, Positions: ti.Positions})
	}
	for _, slot := range slices.Sorted(maps.Keys(d.Values)) {
		wd.Values = append(wd.Values, wireValue{Slot: slot, Value: d.Values[slot]})
	}
	return wd
}

func (wd *wireDoc) document() *model.Document {
	if wd == nil {
		return nil
	}
	d := model.NewDocument()
	d.Data = wd.Data
	for _, t := range wd.Terms {
		d.Terms[string(t.Term)] = &model.TermInfo{WDF: t.WDF, Positions: t.Positions}
	}
	for _, v := range wd.Values {
		d.SetValue(v.Slot, v.Value)
	}
	return d
}

func toWireBatch(b *shard.Batch) *wireBatch {
	wb := &wireBatch{Ops: make([]wireOp, 0, len(b.Ops)), NextDocID: b.NextDocID}
	for _, op := range b.Ops {
		wo := wireOp{Kind: op.Kind, DocID: op.DocID, Doc: toWireDoc(op.Doc), Freq: op.Freq}
		if op.Key != "" {
			wo.Key = []byte(op.Key)
		}
		if op.Value != "" {
			wo.Value = []byte(op.Value)
		}
		wb.Ops = append(wb.Ops, wo)
	}
	return wb
}

func (wb *wireBatch) batch() *shard.Batch {
	b := shard.NewBatch(wb.NextDocID)
	for _, wo := range wb.Ops {
		b.Append(shard.Op{
			Kind:  wo.Kind,
			DocID: wo.DocID,
			Doc:   wo.Doc.document(),
			Key:   string(wo.Key),
			Value: string(wo.Value),
			Freq:  wo.Freq,
		})
	}
	return b
}

func snapshotOf(st *state) *snapshot {
	snap := &snapshot{NextDocID: st.nextDocID}
	for _, did := range slices.Sorted(maps.Keys(st.docs)) {
		snap.Docs = append(snap.Docs, wireDocEntry{ID: did, Doc: toWireDoc(st.docs[did])})
	}
	meta := st.meta.Entries()
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		snap.Metadata = append(snap.Metadata, wirePair{Key: []byte(k), Value: []byte(meta[k])})
	}
	syn := st.syn.Entries()
	for _, term := range slices.Sorted(maps.Keys(syn)) {
		ws := wireSynonyms{Term: []byte(term)}
		for _, s := range syn[term] {
			ws.Synonyms = append(ws.Synonyms, []byte(s))
		}
		snap.Synonyms = append(snap.Synonyms, ws)
	}
	for _, e := range st.spell.Entries() {
		snap.Spellings = append(snap.Spellings, wireSpelling{Word: []byte(e.Word), Freq: e.Freq})
	}
	return snap
}

func (snap *snapshot) spellings() []spelling.Entry {
	out := make([]spelling.Entry, 0, len(snap.Spellings))
	for _, s := range snap.Spellings {
		out = append(out, spelling.Entry{Word: string(s.Word), Freq: s.Freq})
	}
	return out
}
