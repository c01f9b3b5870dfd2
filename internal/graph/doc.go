// Package graph builds differentially private analyses as DAGs of
// components and drives their release lifecycle against an evaluation
// engine.
//
// An Analysis owns every Node created in it. Nodes are registered only
// while their analysis is active in a Scope:
//
//	scope := graph.NewScope()
//	a := graph.New(client)
//	exit := scope.Enter(a)
//	defer exit()
//
//	data, _ := a.Dataset(graph.DatasetSpec{Path: "data.csv", ColumnNames: []string{"age", "income"}})
//	age, _ := data.Index("age")
//	mean, _ := a.DPMean(age, graph.DPParams{
//		Usage:       []privacy.Usage{privacy.ApproximateUsage(0.65, 1e-6)},
//		Constraints: graph.Constraints{"data_lower": 0., "data_upper": 100., "data_n": 1000},
//	})
//	if err := a.Release(ctx); err != nil { ... }
//	fmt.Println(mean.Value())
//
// Key invariants:
//   - Node ids start at 0, follow creation order and are never reused,
//     even after Prune.
//   - Arguments always refer to earlier nodes of the same analysis, so the
//     graph is acyclic by construction.
//   - Release sends the whole graph and every known value; on success the
//     known values are replaced by the engine's answer and Batch advances by
//     one. A failed release changes nothing.
//   - An Analysis is not safe for concurrent use.
package graph
