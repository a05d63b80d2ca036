// Package pointcloud reads x,y,z CSV clouds, thins them to one randomly
// chosen point per occupied voxel, and writes the result back out as CSV.
//
// Voxel keys use math.Round (half away from zero) on coord/voxelSize, so a
// voxel of size s is centred on integer multiples of s.
package pointcloud
