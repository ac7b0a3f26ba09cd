// Package where defines the backend-agnostic filter expression (Where) and
// the sort keys accepted by find operations.
//
// A Where is a tree of And, Or and Condition nodes. Expr is a sealed
// interface (marker method) so the backend compilers can switch over it
// exhaustively:
//
//	[JSON where] -> Parse -> [Expr] -> querysql.Compiler -> SQL fragment + args
//	                                -> querydoc.Compiler -> bson.D filter
//
// Conditions carry a dotted path, one operator of the closed Operator set
// and a raw JSON operand. Parse only checks shape. The compilers resolve
// paths against the schema and call Bind, which applies the operator/kind
// matrix and coerces the operand, so both backends accept and reject the
// same conditions.
package where
