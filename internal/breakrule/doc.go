// Package breakrule decides when an accumulated serial response is complete.
//
// Lasers and SFC hosts do not always end a logical reply with exactly one
// CRLF, so exchanges finish when the buffered text satisfies one of an ordered
// set of rules. Rules come from configuration tokens such as "END:PASS",
// "IN:NEEDPSN" or "MATCHREGEX:PASSED=[01]\s*$"; a token without a prefix is a
// substring rule.
package breakrule
