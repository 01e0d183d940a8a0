package engine

import "strings"

// intent is the matched interpretation of one user message.
type intent int

const (
	intentNone intent = iota
	intentStart
	intentAcceptFate
	intentAccept
	intentRewrite
	intentSeeTruth
	intentAbandon
	intentEpilogue
	intentDecline
	intentHint
	intentLog
	intentProgress
	intentReset
	intentBookmarkAdd
	intentBookmarkRemove
	intentBookmarkClear
	intentBookmarkList
)

// keywordRule matches by substring containment, favoring forgiving
// matching over exact commands. Raw keywords match the raw text,
// loose keywords match the loosely-normalized text.
type keywordRule struct {
	intent intent
	raw    []string
	loose  []string
}

// keywordRules is an ordered list: the first matching rule wins, which
// makes keyword precedence explicit instead of implicit fallthrough.
var keywordRules = []keywordRule{
	{intent: intentStart, raw: []string{"スタート", "はじめる", "思い出す"}, loose: []string{"start"}},
	{intent: intentAcceptFate, raw: []string{"受け入れる"}},
	{intent: intentAccept, raw: []string{"受け取る", "確認"}},
	{intent: intentRewrite, raw: []string{"書き換える"}},
	{intent: intentSeeTruth, raw: []string{"真実を見る", "真実"}},
	{intent: intentAbandon, raw: []string{"やめる", "諦める"}},
	{intent: intentEpilogue, raw: []string{"クリア"}},
	{intent: intentDecline, raw: []string{"断る"}},
	{intent: intentHint, raw: []string{"ヒント"}},
	{intent: intentLog, raw: []string{"ログ"}},
	{intent: intentProgress, raw: []string{"進捗"}},
	{intent: intentReset, raw: []string{"リセット", "はじめから"}, loose: []string{"reset"}},
}

// classifyBookmark recognizes the bookmark command family. These are
// checked before the code lookup: a message carrying the bookmark
// keyword is a command about a code, never a bare puzzle answer.
func classifyBookmark(raw string) (intent, bool) {
	if !strings.Contains(raw, "ブックマーク") {
		return intentNone, false
	}
	switch {
	case strings.Contains(raw, "ブックマーク追加"):
		return intentBookmarkAdd, true
	case strings.Contains(raw, "ブックマーク削除"):
		return intentBookmarkRemove, true
	case strings.Contains(raw, "ブックマーククリア"):
		return intentBookmarkClear, true
	default:
		return intentBookmarkList, true
	}
}

// classifyKeyword walks the ordered rule table. Puzzle-code matching
// happens before this is consulted; see Engine.handleMessage.
func classifyKeyword(raw, loose string) intent {
	for _, rule := range keywordRules {
		for _, kw := range rule.raw {
			if strings.Contains(raw, kw) {
				return rule.intent
			}
		}
		for _, kw := range rule.loose {
			if strings.Contains(loose, kw) {
				return rule.intent
			}
		}
	}
	return intentNone
}
