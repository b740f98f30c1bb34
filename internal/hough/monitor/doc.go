// Package monitor renders the hough parameter plane for inspection.
//
// Three renderings are provided: a gonum/plot heat map with the candidate
// centres marked (PNG), an interactive go-echarts scatter (HTML) and a raw
// one pixel per cell image scaled with nearest neighbour sampling (PNG).
// PlaneSink writes them for every processed event.
package monitor
