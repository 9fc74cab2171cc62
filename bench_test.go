package codegraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// benchSource is a realistic TypeScript module with imports, a class,
// standalone functions and closures for exercising the full pipeline.
const benchSource = `import { formatDate } from '../util/date';
import * as api from '../api/client';

export interface Order {
  id: string;
  total: number;
  createdAt: Date;
}

export class OrderService {
  private cache = new Map<string, Order>();

  constructor(private readonly endpoint: string) {}

  async load(id: string): Promise<Order> {
    const hit = this.cache.get(id);
    if (hit) {
      return hit;
    }
    const order = await api.get(this.endpoint + "/orders/" + id);
    this.cache.set(id, order);
    return order;
  }

  describe(order: Order): string {
    return order.id + " on " + formatDate(order.createdAt);
  }
}

export function totalOf(orders: Order[]): number {
  return orders.reduce((sum, o) => sum + o.total, 0);
}

export function largest(orders: Order[]): Order | undefined {
  let best: Order | undefined;
  for (const o of orders) {
    if (!best || o.total > best.total) {
      best = o;
    }
  }
  return best;
}

function groupByDay(orders: Order[]) {
  const out: Record<string, Order[]> = {};
  orders.forEach((o) => {
    const key = formatDate(o.createdAt);
    (out[key] ||= []).push(o);
  });
  return out;
}

export const summarize = (orders: Order[]) => ({
  total: totalOf(orders),
  largest: largest(orders),
  days: Object.keys(groupByDay(orders)).length,
});
`

const benchHelpers = `export function formatDate(d: Date): string {
  return d.toISOString().slice(0, 10);
}
`

const benchClient = `export async function get(url: string) {
  const res = await fetch(url);
  return res.json();
}
`

// writeBenchProject lays out n order modules plus their shared helpers.
func writeBenchProject(b *testing.B, n int) string {
	b.Helper()
	root := b.TempDir()
	files := map[string]string{
		"src/util/date.ts":  benchHelpers,
		"src/api/client.ts": benchClient,
	}
	for i := 0; i < n; i++ {
		files[fmt.Sprintf("src/orders/orders%03d.ts", i)] = strings.ReplaceAll(benchSource, "OrderService", fmt.Sprintf("OrderService%d", i))
	}
	for rel, src := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return root
}

func benchmarkScan(b *testing.B, files int, opts ...Option) {
	root := writeBenchProject(b, files)
	e := newTestEngine(opts...)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Scan(ctx, root, ScanOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkScan_Serial measures a full scan of 50 modules on one goroutine.
func BenchmarkScan_Serial(b *testing.B) {
	benchmarkScan(b, 50, WithParallel(false))
}

// BenchmarkScan_Parallel measures the same scan with the worker pool.
func BenchmarkScan_Parallel(b *testing.B) {
	benchmarkScan(b, 50)
}

// BenchmarkScan_SkipWarnings isolates parsing and graph building.
func BenchmarkScan_SkipWarnings(b *testing.B) {
	root := writeBenchProject(b, 50)
	e := newTestEngine()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Scan(ctx, root, ScanOptions{SkipWarnings: true}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFingerprint measures the hash-only pass used to reuse scans.
func BenchmarkFingerprint(b *testing.B) {
	root := writeBenchProject(b, 50)
	e := newTestEngine()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Fingerprint(ctx, root); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkQueryNodesPage measures a filtered, sorted node page over a
// scanned project. This benchmarks the query path only.
func BenchmarkQueryNodesPage(b *testing.B) {
	root := writeBenchProject(b, 50)
	result, err := newTestEngine().Scan(context.Background(), root, ScanOptions{})
	if err != nil {
		b.Fatal(err)
	}
	q := NewQuery(result)
	filter := NodeFilter{Type: NodeTypeFunction, FilePath: "src/orders"}
	sort := Sort{Field: SortByLines, Order: Desc}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.NodesPage(filter, sort, Pagination{Limit: 20}); err != nil {
			b.Fatal(err)
		}
	}
}
