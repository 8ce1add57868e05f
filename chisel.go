// Package chisel compiles composable query descriptions into parameterized
// ClickHouse SQL, caches compiled templates by structural fingerprint, and
// materializes declarative relation graphs into single round-trip queries
// with nested result reconstruction.
package chisel

import (
	"github.com/coregx/chisel/internal/core"
	"github.com/coregx/chisel/internal/logger"
	"github.com/coregx/chisel/internal/relation"
	"github.com/coregx/chisel/internal/schema"
)

type (
	// Table describes a ClickHouse table: columns, relations, primary key,
	// and cluster/projection options.
	Table = schema.Table
	// Column describes a single table column.
	Column = schema.Column
	// Relation declares how rows of one table relate to rows of another.
	Relation = schema.Relation
	// RelationKind distinguishes to-one from to-many relations.
	RelationKind = schema.RelationKind

	// DB couples a ClickHouse connection with the template cache, logging,
	// and tracing.
	DB = core.DB
	// Option is a functional option for configuring DB.
	Option = core.Option
	// Query is an abstract, composable description of a SELECT query.
	Query = core.Query
	// Compiled is a fully compiled, client-independent query template.
	Compiled = core.Compiled
	// PreparedQuery is a template bound to values and a client, ready to run.
	PreparedQuery = core.PreparedQuery
	// WaitOptions configures mutation-completion polling.
	WaitOptions = core.WaitOptions
	// Conn is the minimal client handle a prepared query executes against.
	Conn = core.Conn
	// Expr is a composable condition or scalar expression.
	Expr = core.Expr
	// Join describes one join clause of a query.
	Join = core.Join
	// Direction is an ORDER BY direction keyword.
	Direction = core.Direction
	// JoinKind is the set of supported join types.
	JoinKind = core.JoinKind
	// CompilationError reports a fatal problem while compiling a query.
	CompilationError = core.CompilationError
	// Logger is the logging interface query execution reports to.
	Logger = logger.Logger

	// Engine runs relational finds against one root table.
	Engine = relation.Engine
	// FindOptions configures a relational find call.
	FindOptions = relation.Options
	// Include scopes one requested relation in a find call.
	Include = relation.Include
	// Record is one reconstructed nested result object.
	Record = relation.Record
	// Filter builds a condition from a table's columns, keyed by name.
	Filter = relation.Filter
	// JoinStrategy selects how relation joins are rendered on clusters.
	JoinStrategy = relation.Strategy
)

const (
	// One marks a relation resolving to at most a single target row.
	One = schema.One
	// Many marks a relation resolving to zero or more target rows.
	Many = schema.Many

	// Asc sorts ascending.
	Asc = core.Asc
	// Desc sorts descending.
	Desc = core.Desc

	// JoinInner is an INNER JOIN.
	JoinInner = core.JoinInner
	// JoinLeft is a LEFT JOIN.
	JoinLeft = core.JoinLeft
	// JoinRight is a RIGHT JOIN.
	JoinRight = core.JoinRight
	// JoinFull is a FULL JOIN.
	JoinFull = core.JoinFull
	// JoinCross is a CROSS JOIN.
	JoinCross = core.JoinCross

	// StrategyAuto picks GLOBAL joins when either side is clustered.
	StrategyAuto = relation.StrategyAuto
	// StrategyStandard always renders plain joins.
	StrategyStandard = relation.StrategyStandard
	// StrategyGlobal always renders GLOBAL joins.
	StrategyGlobal = relation.StrategyGlobal
	// StrategyAny renders ANY joins.
	StrategyAny = relation.StrategyAny
	// StrategyGlobalAny combines GLOBAL and ANY.
	StrategyGlobalAny = relation.StrategyGlobalAny
)

// Predefined errors.
var (
	// ErrMissingTable is returned when a query carries no root table.
	ErrMissingTable = core.ErrMissingTable
	// ErrWaitTimeout is returned when mutation polling exceeds its timeout.
	ErrWaitTimeout = core.ErrWaitTimeout
)

// Re-export constructors and builders.
var (
	Open          = core.Open
	WrapDB        = core.WrapDB
	Bind          = core.Bind
	Compile       = core.Compile
	Fingerprint   = core.Fingerprint
	From          = core.From
	Subquery      = core.FromSubquery
	NewTable      = schema.NewTable
	NewEngine     = relation.New
	NewSlogLogger = logger.NewSlogAdapter

	WithTemplateCacheCapacity = core.WithTemplateCacheCapacity
	WithLogger                = core.WithLogger
	WithTracer                = core.WithTracer

	// Expression builders
	Eq             = core.Eq
	NotEq          = core.NotEq
	GreaterThan    = core.GreaterThan
	LessThan       = core.LessThan
	GreaterOrEqual = core.GreaterOrEqual
	LessOrEqual    = core.LessOrEqual
	In             = core.In
	NotIn          = core.NotIn
	Like           = core.Like
	NotLike        = core.NotLike
	Between        = core.Between
	IsNull         = core.IsNull
	IsNotNull      = core.IsNotNull
	And            = core.And
	Or             = core.Or
	Not            = core.Not
	Raw            = core.Raw
	Fn             = core.Fn
)
